package database

import (
	"context"
	"sync"
)

// MemoryRecordRepository keeps records for the lifetime of the process.
// It backs dry runs and tests.
type MemoryRecordRepository struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{records: make(map[string]Record)}
}

func (r *MemoryRecordRepository) Exists(ctx context.Context, itemID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.records[itemID]
	return ok, nil
}

func (r *MemoryRecordRepository) Create(ctx context.Context, record *Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ItemID]; ok {
		return false, nil
	}
	r.records[record.ItemID] = *record
	return true, nil
}

func (r *MemoryRecordRepository) Get(itemID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[itemID]
	return record, ok
}

func (r *MemoryRecordRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}
