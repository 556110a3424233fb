package cfg

import "time"

const (
	StoreNotion   = "notion"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Cfg struct {
	// Channel registry
	ChannelsFile string

	// Store configuration
	Store            string
	DBPath           string
	DBDSN            string
	NotionAPIKey     string
	NotionDatabaseID string

	// AI service configuration
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiRPM     int
	AIMaxRetries  int

	// Media configuration
	YtdlpPath string
	MediaMode string

	// Timeouts and throttling
	FeedTimeout  time.Duration
	MediaTimeout time.Duration
	AITimeout    time.Duration
	StoreTimeout time.Duration
	ItemPause    time.Duration

	// Trigger API
	Serve        bool
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
