package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses RSS/Atom data. Entries without a derivable identifier are
// dropped since they could never be deduplicated across runs.
func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:     feed.Title,
		Link:      feed.Link,
		ChannelID: extensionValue(feed.Extensions, "yt", "channelId"),
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		normalized := p.normalizeItem(item)
		if normalized.ID == "" {
			continue
		}
		normalized.ChannelID = cmp.Or(extensionValue(item.Extensions, "yt", "channelId"), metadata.ChannelID)
		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		ID:    ItemID(item),
		Title: strings.TrimSpace(item.Title),
		URL:   item.Link,
	}

	if id := youtubeVideoID(item); isVideoID(id) {
		normalized.URL = watchURLPrefix + id
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed.UTC()
	}

	return normalized
}

// ItemID derives the canonical identifier of a feed entry: the yt:videoId
// extension, then the v parameter of the link, then the GUID without its
// "yt:video:" prefix, then the link itself.
func ItemID(item *gofeed.Item) string {
	return strings.TrimSpace(cmp.Or(
		extensionValue(item.Extensions, "yt", "videoId"),
		videoIDFromLink(item.Link),
		strings.TrimPrefix(item.GUID, "yt:video:"),
		item.Link,
	))
}

// youtubeVideoID returns the video id only when the entry itself comes
// from YouTube: the yt:videoId extension, a YouTube link or a yt:video GUID.
func youtubeVideoID(item *gofeed.Item) string {
	if id := extensionValue(item.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	if isYouTubeLink(item.Link) {
		if id := videoIDFromLink(item.Link); id != "" {
			return id
		}
	}
	if id, ok := strings.CutPrefix(strings.TrimSpace(item.GUID), "yt:video:"); ok {
		return id
	}
	return ""
}

func isYouTubeLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

func videoIDFromLink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if u.Host == "youtu.be" {
		return strings.Trim(u.Path, "/")
	}
	if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
		return strings.Trim(rest, "/")
	}
	return ""
}

func isVideoID(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	values := exts[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
