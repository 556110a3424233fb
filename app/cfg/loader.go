package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/tube-digest/app/failure"
)

// Version is set at build time via -ldflags
var Version = "dev"

// MaxAIRetries caps the retries of a transient AI service error.
const MaxAIRetries = 2

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Channel registry
	ChannelsFile string `long:"channels-file" env:"CHANNELS_FILE" description:"YAML file with the channel registry (embedded default when empty)"`

	// Store configuration
	Store            string `long:"store" env:"STORE" default:"notion" choice:"notion" choice:"sqlite" choice:"postgres" choice:"memory" description:"Record store backend"`
	DBPath           string `long:"db-path" env:"DB_PATH" default:"./tube-digest.db" description:"SQLite database file (sqlite store)"`
	DBDSN            string `long:"db-dsn" env:"DATABASE_URL" description:"Postgres connection string (postgres store)"`
	NotionAPIKey     string `long:"notion-api-key" env:"NOTION_API_KEY" description:"Notion integration token (notion store)"`
	NotionDatabaseID string `long:"notion-database-id" env:"NOTION_DATABASE_ID" description:"Notion database receiving the records (notion store)"`

	// AI service configuration
	GeminiAPIKey  string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key (required)"`
	GeminiModel   string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.5-flash" description:"Gemini model used for transcripts and summaries"`
	GeminiBaseURL string `long:"gemini-base-url" env:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com" description:"Gemini API base URL"`
	GeminiRPM     int    `long:"gemini-rpm" env:"GEMINI_RPM" default:"10" description:"Maximum Gemini requests per minute (0 disables throttling)"`
	AIMaxRetries  int    `long:"ai-max-retries" env:"AI_MAX_RETRIES" default:"2" description:"Retries for transient AI service errors (0-2)"`

	// Media configuration
	YtdlpPath string `long:"ytdlp-path" env:"YTDLP_PATH" default:"yt-dlp" description:"Path to the yt-dlp executable"`
	MediaMode string `long:"media-mode" env:"MEDIA_MODE" default:"download" choice:"download" choice:"url" description:"Send downloaded audio or the video URL to the AI service"`

	// Timeouts and throttling
	FeedTimeout  int `long:"feed-timeout" env:"FEED_TIMEOUT" default:"30" description:"Feed fetch timeout in seconds"`
	MediaTimeout int `long:"media-timeout" env:"MEDIA_TIMEOUT" default:"600" description:"Audio download timeout in seconds"`
	AITimeout    int `long:"ai-timeout" env:"AI_TIMEOUT" default:"300" description:"AI request timeout in seconds"`
	StoreTimeout int `long:"store-timeout" env:"STORE_TIMEOUT" default:"30" description:"Store request timeout in seconds"`
	ItemPause    int `long:"item-pause" env:"ITEM_PAUSE" default:"5" description:"Pause after each processed video in seconds"`

	// Trigger API
	Serve        bool   `long:"serve" env:"SERVE" description:"Run the trigger API instead of a single run"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port (with --serve)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the trigger API (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"tube-digest/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses the command line and environment. It returns nil, nil when
// help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to parse configuration: %w", failure.ErrConfigurationMissing, err)
	}

	cfg := &Cfg{
		ChannelsFile:     raw.ChannelsFile,
		Store:            raw.Store,
		DBPath:           raw.DBPath,
		DBDSN:            raw.DBDSN,
		NotionAPIKey:     strings.TrimSpace(raw.NotionAPIKey),
		NotionDatabaseID: strings.TrimSpace(raw.NotionDatabaseID),
		GeminiAPIKey:     strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:      raw.GeminiModel,
		GeminiBaseURL:    strings.TrimRight(raw.GeminiBaseURL, "/"),
		GeminiRPM:        raw.GeminiRPM,
		AIMaxRetries:     raw.AIMaxRetries,
		YtdlpPath:        raw.YtdlpPath,
		MediaMode:        raw.MediaMode,
		FeedTimeout:      time.Duration(raw.FeedTimeout) * time.Second,
		MediaTimeout:     time.Duration(raw.MediaTimeout) * time.Second,
		AITimeout:        time.Duration(raw.AITimeout) * time.Second,
		StoreTimeout:     time.Duration(raw.StoreTimeout) * time.Second,
		ItemPause:        time.Duration(raw.ItemPause) * time.Second,
		Serve:            raw.Serve,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// Validate checks the values a run cannot start without. Every error wraps
// failure.ErrConfigurationMissing.
func (c *Cfg) Validate() error {
	var missing []string

	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}

	switch c.Store {
	case StoreNotion:
		if c.NotionAPIKey == "" {
			missing = append(missing, "NOTION_API_KEY")
		}
		if c.NotionDatabaseID == "" {
			missing = append(missing, "NOTION_DATABASE_ID")
		}
	case StoreSQLite:
		if c.DBPath == "" {
			missing = append(missing, "DB_PATH")
		}
	case StorePostgres:
		if c.DBDSN == "" {
			missing = append(missing, "DATABASE_URL")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not set", failure.ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	durations := map[string]time.Duration{
		"feed-timeout":  c.FeedTimeout,
		"media-timeout": c.MediaTimeout,
		"ai-timeout":    c.AITimeout,
		"store-timeout": c.StoreTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", failure.ErrConfigurationMissing, name)
		}
	}

	if c.ItemPause < 0 || c.AIMaxRetries < 0 || c.GeminiRPM < 0 {
		return fmt.Errorf("%w: item-pause, ai-max-retries and gemini-rpm must not be negative", failure.ErrConfigurationMissing)
	}

	if c.AIMaxRetries > MaxAIRetries {
		return fmt.Errorf("%w: ai-max-retries must be at most %d, got %d", failure.ErrConfigurationMissing, MaxAIRetries, c.AIMaxRetries)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
