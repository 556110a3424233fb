// Package writer persists processed records exactly once per item id.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/tube-digest/app/database"
	"github.com/lysyi3m/tube-digest/app/failure"
)

type Writer struct {
	repo    database.RecordRepository
	timeout time.Duration
}

func New(repo database.RecordRepository, timeout time.Duration) *Writer {
	return &Writer{
		repo:    repo,
		timeout: timeout,
	}
}

// Write stores the record unless one with the same item id already
// exists, reporting whether it created one. Every failure is reported as
// failure.ErrPersistenceError.
func (w *Writer) Write(ctx context.Context, record *database.Record) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", failure.ErrPersistenceError, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	exists, err := w.repo.Exists(timeoutCtx, record.ItemID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", failure.ErrPersistenceError, err)
	}
	if exists {
		slog.Debug("Record already stored", "item_id", record.ItemID)
		return false, nil
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	created, err := w.repo.Create(timeoutCtx, record)
	if err != nil {
		return false, fmt.Errorf("%w: %w", failure.ErrPersistenceError, err)
	}

	if created {
		slog.Debug("Record stored", "item_id", record.ItemID, "channel", record.ChannelName)
	}

	return created, nil
}
