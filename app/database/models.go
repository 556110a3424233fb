package database

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is a processed video. It is created once and never updated.
type Record struct {
	ItemID      string
	ChannelName string
	Title       string
	PublishedOn time.Time // Date only, time of day is discarded
	Summary     string
	URL         string
	Transcript  string // Formatted transcript, may be empty
	CreatedAt   time.Time
}

// Validate reports every required field the record is missing.
func (r *Record) Validate() error {
	var missing []string

	if strings.TrimSpace(r.ItemID) == "" {
		missing = append(missing, "item id")
	}
	if strings.TrimSpace(r.ChannelName) == "" {
		missing = append(missing, "channel name")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.Summary) == "" {
		missing = append(missing, "summary")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRecord, strings.Join(missing, ", "))
	}

	return nil
}

// PublishedDate formats PublishedOn as YYYY-MM-DD.
func (r *Record) PublishedDate() string {
	if r.PublishedOn.IsZero() {
		return ""
	}
	return r.PublishedOn.UTC().Format(time.DateOnly)
}

var ErrIncompleteRecord = errors.New("incomplete record")
