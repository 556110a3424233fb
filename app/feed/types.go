package feed

import (
	"time"
)

type Metadata struct {
	Title     string
	Link      string
	ChannelID string // yt:channelId of YouTube feeds
}

// Item is a candidate video discovered in a channel feed during one run.
type Item struct {
	ID          string // canonical video id, the idempotency key
	Title       string
	URL         string
	PublishedAt time.Time
	ChannelID   string
	ChannelName string

	IsFiltered   bool
	FilterReason string
}
