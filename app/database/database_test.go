package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func testRecord(id string) *Record {
	return &Record{
		ItemID:      id,
		ChannelName: "Mogul Mail",
		Title:       "How creators get paid",
		PublishedOn: time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC),
		Summary:     "A summary.",
		URL:         "https://www.youtube.com/watch?v=" + id,
		Transcript:  "Host: Hello.",
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever")
	if err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error on second run, got: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1, got: %d dirty=%v", version, dirty)
	}
}

func TestSQLRecordRepositoryCreateIsIdempotent(t *testing.T) {
	repo := NewSQLRecordRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, testRecord("aaaaaaaaaaa"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !created {
		t.Error("Expected first create to write a record")
	}

	duplicate := testRecord("aaaaaaaaaaa")
	duplicate.Title = "Different title"
	created, err = repo.Create(ctx, duplicate)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if created {
		t.Error("Expected second create to be a no-op")
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 record, got: %d", count)
	}

	var title, publishedOn string
	err = repo.db.QueryRowContext(ctx, `SELECT title, published_on FROM records WHERE item_id = $1`, "aaaaaaaaaaa").
		Scan(&title, &publishedOn)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if title != "How creators get paid" {
		t.Errorf("Expected first record to be kept, got title: %s", title)
	}
	if publishedOn != "2025-03-01" {
		t.Errorf("Expected published date 2025-03-01, got: %s", publishedOn)
	}
}

func TestSQLRecordRepositoryExists(t *testing.T) {
	repo := NewSQLRecordRepository(openTestDB(t))
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "bbbbbbbbbbb")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if exists {
		t.Error("Expected record to be absent")
	}

	if _, err := repo.Create(ctx, testRecord("bbbbbbbbbbb")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	exists, err = repo.Exists(ctx, "bbbbbbbbbbb")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !exists {
		t.Error("Expected record to exist")
	}
}

func TestSQLRecordRepositoryRejectsEmptySummary(t *testing.T) {
	repo := NewSQLRecordRepository(openTestDB(t))

	record := testRecord("ccccccccccc")
	record.Summary = ""

	if _, err := repo.Create(context.Background(), record); err == nil {
		t.Error("Expected schema to reject a record without summary")
	}
}

func TestSQLRecordRepositoryClosedDB(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLRecordRepository(db)
	db.Close()

	if _, err := repo.Exists(context.Background(), "x"); err == nil {
		t.Error("Expected error on closed database")
	}
}

func TestMemoryRecordRepository(t *testing.T) {
	repo := NewMemoryRecordRepository()
	ctx := context.Background()

	created, _ := repo.Create(ctx, testRecord("ddddddddddd"))
	if !created {
		t.Error("Expected first create to write a record")
	}
	created, _ = repo.Create(ctx, testRecord("ddddddddddd"))
	if created {
		t.Error("Expected second create to be a no-op")
	}

	exists, _ := repo.Exists(ctx, "ddddddddddd")
	if !exists {
		t.Error("Expected record to exist")
	}
	if repo.Len() != 1 {
		t.Errorf("Expected 1 record, got: %d", repo.Len())
	}
}

func TestRecordValidate(t *testing.T) {
	if err := testRecord("x").Validate(); err != nil {
		t.Errorf("Expected complete record to validate, got: %v", err)
	}

	record := testRecord("x")
	record.Summary = "  "
	record.Title = ""

	err := record.Validate()
	if !errors.Is(err, ErrIncompleteRecord) {
		t.Fatalf("Expected ErrIncompleteRecord, got: %v", err)
	}
	if err.Error() != "incomplete record: missing title, summary" {
		t.Errorf("Unexpected error message: %v", err)
	}
}
