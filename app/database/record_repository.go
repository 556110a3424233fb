package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SQLRecordRepository struct {
	db *DB
}

func NewSQLRecordRepository(db *DB) *SQLRecordRepository {
	return &SQLRecordRepository{db: db}
}

func (r *SQLRecordRepository) Exists(ctx context.Context, itemID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE item_id = $1`, itemID).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}

	return true, nil
}

// Create relies on the primary key, so concurrent writers of the same
// item id still end up with one row.
func (r *SQLRecordRepository) Create(ctx context.Context, record *Record) (bool, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO records (
			item_id, channel_name, title, published_on, summary, url, transcript, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id) DO NOTHING
	`, record.ItemID, record.ChannelName, record.Title, record.PublishedDate(),
		record.Summary, record.URL, record.Transcript, createdAt.UTC().Format(time.RFC3339))

	if err != nil {
		return false, fmt.Errorf("failed to create record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *SQLRecordRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get record count: %w", err)
	}
	return count, nil
}
