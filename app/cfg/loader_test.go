package cfg

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/tube-digest/app/failure"
)

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "NOTION_API_KEY", "NOTION_DATABASE_ID", "DATABASE_URL", "STORE", "CHANNELS_FILE", "API_ACCESS_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("STORE", "notion")
}

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("NOTION_API_KEY", "n-key")
	t.Setenv("NOTION_DATABASE_ID", "db-id")

	cfg, err := LoadArgs(nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Store != StoreNotion {
		t.Errorf("Expected store 'notion', got '%s'", cfg.Store)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("Expected default model, got '%s'", cfg.GeminiModel)
	}
	if cfg.ItemPause != 5*time.Second {
		t.Errorf("Expected item pause 5s, got %v", cfg.ItemPause)
	}
	if cfg.MediaMode != "download" {
		t.Errorf("Expected media mode 'download', got '%s'", cfg.MediaMode)
	}
	if cfg.AIMaxRetries != 2 {
		t.Errorf("Expected 2 AI retries, got %d", cfg.AIMaxRetries)
	}
}

func TestLoadMissingSecrets(t *testing.T) {
	clearSecrets(t)

	_, err := LoadArgs(nil)
	if !errors.Is(err, failure.ErrConfigurationMissing) {
		t.Fatalf("Expected ErrConfigurationMissing, got: %v", err)
	}
	for _, key := range []string{"GEMINI_API_KEY", "NOTION_API_KEY", "NOTION_DATABASE_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error to name %s, got: %v", key, err)
		}
	}
}

func TestLoadSQLiteStoreNeedsNoNotion(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := LoadArgs([]string{"--store", "sqlite", "--db-path", "/tmp/x.db", "--item-pause", "0"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.DBPath != "/tmp/x.db" {
		t.Errorf("Unexpected store config: %s %s", cfg.Store, cfg.DBPath)
	}
	if cfg.ItemPause != 0 {
		t.Errorf("Expected no item pause, got %v", cfg.ItemPause)
	}
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	_, err := LoadArgs([]string{"--store", "postgres"})
	if !errors.Is(err, failure.ErrConfigurationMissing) || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Expected missing DATABASE_URL, got: %v", err)
	}
}

func TestLoadMissingGeminiKeyAlwaysFails(t *testing.T) {
	clearSecrets(t)

	_, err := LoadArgs([]string{"--store", "memory"})
	if !errors.Is(err, failure.ErrConfigurationMissing) {
		t.Errorf("Expected ErrConfigurationMissing, got: %v", err)
	}
}

func TestLoadInvalidChoice(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	_, err := LoadArgs([]string{"--store", "mongo"})
	if !errors.Is(err, failure.ErrConfigurationMissing) {
		t.Errorf("Expected ErrConfigurationMissing for invalid store, got: %v", err)
	}
}

func TestLoadRejectsZeroTimeout(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	_, err := LoadArgs([]string{"--store", "memory", "--ai-timeout", "0"})
	if !errors.Is(err, failure.ErrConfigurationMissing) {
		t.Errorf("Expected ErrConfigurationMissing for zero timeout, got: %v", err)
	}
}

func TestLoadRetryCap(t *testing.T) {
	clearSecrets(t)
	t.Setenv("GEMINI_API_KEY", "g-key")

	_, err := LoadArgs([]string{"--store", "memory", "--ai-max-retries", "7"})
	if !errors.Is(err, failure.ErrConfigurationMissing) || !strings.Contains(err.Error(), "ai-max-retries") {
		t.Errorf("Expected ai-max-retries above %d to be rejected, got: %v", MaxAIRetries, err)
	}

	cfg, err := LoadArgs([]string{"--store", "memory", "--ai-max-retries", "0"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.AIMaxRetries != 0 {
		t.Errorf("Expected 0 AI retries, got %d", cfg.AIMaxRetries)
	}
}

func TestLoadHelp(t *testing.T) {
	clearSecrets(t)

	cfg, err := LoadArgs([]string{"--help"})
	if cfg != nil || err != nil {
		t.Errorf("Expected nil, nil for help, got: %v, %v", cfg, err)
	}
}
