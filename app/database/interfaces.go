package database

import "context"

// RecordRepository is the persistent store of processed records keyed by
// item id.
type RecordRepository interface {
	Exists(ctx context.Context, itemID string) (bool, error)
	// Create stores the record and reports whether a new one was written.
	// Stores with a unique key report false for an existing item id;
	// create-only stores rely on the caller checking Exists first.
	Create(ctx context.Context, record *Record) (bool, error)
}
