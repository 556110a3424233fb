package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/tube-digest/app/ai"
	"github.com/lysyi3m/tube-digest/app/api"
	"github.com/lysyi3m/tube-digest/app/cfg"
	"github.com/lysyi3m/tube-digest/app/channel"
	"github.com/lysyi3m/tube-digest/app/database"
	"github.com/lysyi3m/tube-digest/app/failure"
	"github.com/lysyi3m/tube-digest/app/feed"
	"github.com/lysyi3m/tube-digest/app/format"
	"github.com/lysyi3m/tube-digest/app/media"
	"github.com/lysyi3m/tube-digest/app/notion"
	"github.com/lysyi3m/tube-digest/app/pipeline"
	"github.com/lysyi3m/tube-digest/app/retry"
	"github.com/lysyi3m/tube-digest/app/tasks"
	"github.com/lysyi3m/tube-digest/app/writer"
)

const (
	exitOK            = 0
	exitFailures      = 1
	exitConfiguration = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitCode(err)
	}
	if config == nil {
		return exitOK
	}

	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting tube-digest", "version", config.Version, "store", config.Store, "media_mode", config.MediaMode)

	registry, err := channel.Load(config.ChannelsFile)
	if err != nil {
		slog.Error("Failed to load channel registry", "error", err)
		return exitCode(err)
	}
	slog.Info("Channel registry loaded", "channels", registry.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, config)
	if err != nil {
		slog.Error("Failed to open record store", "store", config.Store, "kind", failure.Classify(err), "error", err)
		return exitCode(err)
	}
	defer closeStore()

	httpClient := &http.Client{}

	fetcher := media.NewFetcher(config.YtdlpPath, config.MediaTimeout, media.Mode(config.MediaMode))

	gemini := ai.NewGeminiClient(httpClient, ai.GeminiConfig{
		APIKey:            config.GeminiAPIKey,
		Model:             config.GeminiModel,
		BaseURL:           config.GeminiBaseURL,
		Timeout:           config.AITimeout,
		RequestsPerMinute: config.GeminiRPM,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = config.AIMaxRetries

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Channels:     registry,
		Reader:       feed.NewReader(httpClient, feed.NewParser(), fetcher, config.UserAgent, config.FeedTimeout),
		Filterer:     feed.NewFilterer(),
		Store:        repo,
		Fetcher:      fetcher,
		Engine:       ai.NewEngine(gemini, retryCfg),
		Formatter:    format.NewFormatter(),
		Writer:       writer.New(repo, config.StoreTimeout),
		StoreTimeout: config.StoreTimeout,
		ItemPause:    config.ItemPause,
	})

	if config.Serve {
		return serve(ctx, config, orchestrator)
	}

	result := orchestrator.Run(ctx, "")

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(result); err != nil {
		slog.Error("Failed to write run result", "error", err)
	}

	if code := result.ExitCode(); code != exitOK {
		return exitFailures
	}
	return exitOK
}

// exitCode maps a startup error to the process exit status. Only missing
// or invalid configuration is reported as a configuration error.
func exitCode(err error) int {
	if failure.Fatal(err) {
		return exitConfiguration
	}
	return exitFailures
}

// openStore returns the record store selected by --store and a function
// releasing it.
func openStore(ctx context.Context, config *cfg.Cfg) (database.RecordRepository, func(), error) {
	noop := func() {}

	switch config.Store {
	case cfg.StoreNotion:
		return notion.NewClient(&http.Client{}, config.NotionAPIKey, config.NotionDatabaseID), noop, nil

	case cfg.StoreMemory:
		slog.Warn("Using in-memory store, records are lost on exit")
		return database.NewMemoryRecordRepository(), noop, nil

	case cfg.StoreSQLite, cfg.StorePostgres:
		driver, dsn := database.DriverSQLite, config.DBPath
		if config.Store == cfg.StorePostgres {
			driver, dsn = database.DriverPostgres, config.DBDSN
		}

		openCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
		defer cancel()

		db, err := database.Open(openCtx, driver, dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %w", failure.ErrStoreUnreachable, err)
		}

		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("%w: failed to run migrations: %w", failure.ErrStoreUnreachable, err)
		}

		repo := database.NewSQLRecordRepository(db)
		count, err := repo.Count(openCtx)
		if err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("%w: %w", failure.ErrStoreUnreachable, err)
		}
		slog.Info("Database ready", "driver", driver, "schema_version", version, "dirty", dirty, "records", count)

		return repo, func() { db.Close() }, nil
	}

	return nil, noop, fmt.Errorf("%w: unsupported store: %s", failure.ErrConfigurationMissing, config.Store)
}

func serve(ctx context.Context, config *cfg.Cfg, orchestrator *pipeline.Orchestrator) int {
	scheduler := tasks.NewScheduler(0)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(orchestrator, scheduler, config.Version)

	httpServer := &http.Server{
		Addr:        ":" + config.Port,
		Handler:     api.NewServer(handler, config.APIAccessKey),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	code := exitOK
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		code = exitFailures
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("tube-digest stopped")
	return code
}
