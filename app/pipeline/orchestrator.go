// Package pipeline drives a run: channels are read in registry order and
// every new video goes through fetch, transcription, summary, formatting
// and persistence. A failing channel or video never stops the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/tube-digest/app/channel"
	"github.com/lysyi3m/tube-digest/app/database"
	"github.com/lysyi3m/tube-digest/app/dedup"
	"github.com/lysyi3m/tube-digest/app/failure"
	"github.com/lysyi3m/tube-digest/app/feed"
	"github.com/lysyi3m/tube-digest/app/format"
	"github.com/lysyi3m/tube-digest/app/media"
)

type State string

const (
	StateCandidate    State = "candidate"
	StateFetching     State = "fetching"
	StateTranscribing State = "transcribing"
	StateSummarizing  State = "summarizing"
	StateFormatting   State = "formatting"
	StatePersisting   State = "persisting"
	StateDone         State = "done"

	// Channel-level stages
	stageFeed  = "feed"
	stageDedup = "dedup"
)

type ChannelSource interface {
	Channels() []channel.Channel
}

type FeedReader interface {
	Read(ctx context.Context, ch channel.Channel) ([]feed.Item, error)
}

type MediaFetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*media.Audio, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio *media.Audio) (string, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}

type RecordWriter interface {
	Write(ctx context.Context, record *database.Record) (bool, error)
}

type Orchestrator struct {
	channels  ChannelSource
	reader    FeedReader
	filterer  *feed.Filterer
	store     dedup.Store
	fetcher   MediaFetcher
	engine    Transcriber
	formatter *format.Formatter
	writer    RecordWriter

	storeTimeout time.Duration
	itemPause    time.Duration
}

type Options struct {
	Channels  ChannelSource
	Reader    FeedReader
	Filterer  *feed.Filterer
	Store     dedup.Store
	Fetcher   MediaFetcher
	Engine    Transcriber
	Formatter *format.Formatter
	Writer    RecordWriter

	StoreTimeout time.Duration
	// ItemPause is waited after every stored record.
	ItemPause time.Duration
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Filterer == nil {
		opts.Filterer = feed.NewFilterer()
	}
	if opts.Formatter == nil {
		opts.Formatter = format.NewFormatter()
	}

	return &Orchestrator{
		channels:     opts.Channels,
		reader:       opts.Reader,
		filterer:     opts.Filterer,
		store:        opts.Store,
		fetcher:      opts.Fetcher,
		engine:       opts.Engine,
		formatter:    opts.Formatter,
		writer:       opts.Writer,
		storeTimeout: opts.StoreTimeout,
		itemPause:    opts.ItemPause,
	}
}

// Run processes every channel once. An empty runID gets a fresh one.
// Cancelling ctx stops the run between items.
func (o *Orchestrator) Run(ctx context.Context, runID string) *RunResult {
	if runID == "" {
		runID = uuid.NewString()
	}

	result := newRunResult(runID)
	index := dedup.New(o.store, o.storeTimeout)
	channels := o.channels.Channels()

	slog.Info("Run started", "run_id", runID, "channels", len(channels))

	for _, ch := range channels {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		o.processChannel(ctx, ch, index, result)
	}

	if ctx.Err() != nil {
		result.Interrupted = true
	}
	result.finish()

	slog.Info("Run finished",
		"run_id", runID,
		"duration", result.Duration(),
		"seen", result.Seen,
		"skipped", result.Skipped,
		"filtered", result.Filtered,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"interrupted", result.Interrupted)

	return result
}

func (o *Orchestrator) processChannel(ctx context.Context, ch channel.Channel, index *dedup.Index, result *RunResult) {
	items, err := o.reader.Read(ctx, ch)
	if err != nil {
		slog.Error("Channel failed", "channel", ch.Name, "error", err)
		result.addFailure(failure.Wrap(err, ch.Name, "", stageFeed))
		return
	}

	result.Seen += len(items)

	var candidates []feed.Item
	for _, item := range o.filterer.Run(items, ch.Filters) {
		if item.IsFiltered {
			slog.Debug("Item filtered", "channel", ch.Name, "item_id", item.ID, "reason", item.FilterReason)
			result.Filtered++
			continue
		}
		candidates = append(candidates, item)
	}

	checked := index.Filter(ctx, candidates)
	result.Skipped += len(checked.Known)

	for _, item := range checked.Unchecked {
		result.addFailure(failure.Wrap(checked.Errors[item.ID], ch.Name, item.ID, stageDedup))
	}

	slog.Debug("Channel read",
		"channel", ch.Name,
		"items", len(items),
		"fresh", len(checked.Fresh),
		"known", len(checked.Known),
		"unchecked", len(checked.Unchecked))

	for _, item := range checked.Fresh {
		if ctx.Err() != nil {
			return
		}

		index.Remember(item.ID)
		start := time.Now()

		created, err := o.processItem(ctx, ch, item)
		if err != nil {
			slog.Error("Item failed", "channel", ch.Name, "item_id", item.ID, "title", item.Title, "error", err)
			result.addFailure(err)
			continue
		}

		if !created {
			slog.Info("Item stored concurrently, skipped", "channel", ch.Name, "item_id", item.ID)
			result.Skipped++
			continue
		}

		result.Succeeded++
		slog.Info("Item processed", "channel", ch.Name, "item_id", item.ID, "title", item.Title, "duration", time.Since(start))

		o.pause(ctx)
	}
}

// processItem moves one item from Candidate to Done. Any error it returns
// is a *failure.Error naming the state the item failed in.
func (o *Orchestrator) processItem(ctx context.Context, ch channel.Channel, item feed.Item) (created bool, err error) {
	state := StateCandidate

	defer func() {
		if r := recover(); r != nil {
			created = false
			err = failure.Wrap(fmt.Errorf("panic: %v", r), ch.Name, item.ID, string(state))
		}
	}()

	fail := func(err error) (bool, error) {
		return false, failure.Wrap(err, ch.Name, item.ID, string(state))
	}

	state = StateFetching
	audio, err := o.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return fail(err)
	}

	state = StateTranscribing
	transcript, err := o.engine.Transcribe(ctx, audio)
	if err != nil {
		return fail(err)
	}

	state = StateSummarizing
	summary, err := o.engine.Summarize(ctx, transcript)
	if err != nil {
		return fail(err)
	}

	state = StateFormatting
	formatted := o.formatter.Run(transcript)

	state = StatePersisting
	record := &database.Record{
		ItemID:      item.ID,
		ChannelName: ch.Name,
		Title:       item.Title,
		PublishedOn: item.PublishedAt,
		Summary:     summary,
		URL:         item.URL,
		Transcript:  formatted,
	}

	created, err = o.writer.Write(ctx, record)
	if err != nil {
		return fail(err)
	}

	state = StateDone
	return created, nil
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.itemPause <= 0 {
		return
	}

	timer := time.NewTimer(o.itemPause)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
