// Package dedup decides which feed items still need processing.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/tube-digest/app/feed"
	"github.com/lysyi3m/tube-digest/app/failure"
)

// Store is the part of the record repository the index reads.
type Store interface {
	Exists(ctx context.Context, itemID string) (bool, error)
}

type Result struct {
	Fresh []feed.Item
	// Known items are already stored or were handled earlier in this run.
	Known []feed.Item
	// Unchecked items could not be looked up; their errors are keyed by
	// item id and wrap failure.ErrStoreUnreachable.
	Unchecked []feed.Item
	Errors    map[string]error
}

// Index checks candidates against the store before any expensive work.
// It also remembers ids seen in the current run, so a video listed by two
// channels is processed once.
type Index struct {
	store   Store
	timeout time.Duration

	mu   sync.Mutex
	seen map[string]bool
}

func New(store Store, timeout time.Duration) *Index {
	return &Index{
		store:   store,
		timeout: timeout,
		seen:    make(map[string]bool),
	}
}

// IsNew reports whether the item id is neither stored nor seen in this run.
func (i *Index) IsNew(ctx context.Context, itemID string) (bool, error) {
	if i.Seen(itemID) {
		return false, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	exists, err := i.store.Exists(timeoutCtx, itemID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", failure.ErrStoreUnreachable, err)
	}

	return !exists, nil
}

// Filter splits items into Fresh, Known and Unchecked. An id listed more
// than once in items is Fresh at most once; later copies are Known.
func (i *Index) Filter(ctx context.Context, items []feed.Item) Result {
	result := Result{Errors: make(map[string]error)}
	batch := make(map[string]bool, len(items))

	for _, item := range items {
		if batch[item.ID] {
			result.Known = append(result.Known, item)
			continue
		}
		batch[item.ID] = true

		isNew, err := i.IsNew(ctx, item.ID)
		switch {
		case err != nil:
			slog.Warn("Existence check failed", "channel", item.ChannelName, "item_id", item.ID, "error", err)
			result.Unchecked = append(result.Unchecked, item)
			result.Errors[item.ID] = err
		case isNew:
			result.Fresh = append(result.Fresh, item)
		default:
			result.Known = append(result.Known, item)
		}
	}

	return result
}

// Remember marks an item id as handled in this run, whatever its outcome.
func (i *Index) Remember(itemID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.seen[itemID] = true
}

func (i *Index) Seen(itemID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.seen[itemID]
}
