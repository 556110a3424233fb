package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/tube-digest/app/failure"
	"github.com/lysyi3m/tube-digest/app/media"
	"github.com/lysyi3m/tube-digest/app/retry"
)

const (
	transcriptInstruction = `Generate a complete transcript of this audio with:
- Paragraph breaks for readability
- Speaker labels if multiple speakers
- Timestamps where helpful
- Mark ads/sponsors as [AD]`

	summaryInstruction = `Provide a 2-3 sentence summary of the main topics discussed in the following transcript. Reply with the summary only.`
)

// Engine transcribes and summarizes through a Capability. A rejected
// request is retried once at minimum strictness; transient service errors
// are retried per attempt with backoff.
type Engine struct {
	capability Capability
	retryCfg   retry.Config
}

func NewEngine(capability Capability, retryCfg retry.Config) *Engine {
	return &Engine{
		capability: capability,
		retryCfg:   retryCfg,
	}
}

func (e *Engine) Transcribe(ctx context.Context, audio *media.Audio) (string, error) {
	if audio == nil || (len(audio.Data) == 0 && audio.SourceURL == "") {
		return "", fmt.Errorf("%w: empty audio payload", failure.ErrTranscriptionServiceError)
	}

	audio, release, err := e.stage(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("%w: transcript: %w", failure.ErrTranscriptionServiceError, err)
	}
	defer release()

	return e.generate(ctx, Request{
		Audio:       audio,
		Instruction: transcriptInstruction,
		Strictness:  StrictnessDefault,
	}, "transcript")
}

func (e *Engine) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("%w: empty transcript", failure.ErrTranscriptionServiceError)
	}

	return e.generate(ctx, Request{
		Text:        transcript,
		Instruction: summaryInstruction,
		Strictness:  StrictnessDefault,
	}, "summary")
}

func (e *Engine) generate(ctx context.Context, req Request, operation string) (string, error) {
	text, err := e.attempt(ctx, req)

	if errors.Is(err, ErrRejected) {
		slog.Warn("Request rejected, retrying at minimum strictness", "operation", operation, "error", err)

		req.Strictness = StrictnessMinimum
		text, err = e.attempt(ctx, req)
		if errors.Is(err, ErrRejected) {
			return "", fmt.Errorf("%w: %s: %w", failure.ErrTranscriptionRejected, operation, err)
		}
	}

	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", failure.ErrTranscriptionServiceError, operation, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s: empty output", failure.ErrTranscriptionServiceError, operation)
	}

	return text, nil
}

// stage uploads the audio once when the capability supports it, so
// retries and the relaxed attempt reuse the same upload.
func (e *Engine) stage(ctx context.Context, audio *media.Audio) (*media.Audio, func(), error) {
	stager, ok := e.capability.(Stager)
	if !ok {
		return audio, func() {}, nil
	}

	var staged *media.Audio
	release := func() {}

	err := retry.Do(ctx, e.retryCfg, IsRetryable, func(ctx context.Context) error {
		out, rel, err := stager.Stage(ctx, audio)
		if err != nil {
			slog.Debug("Stage failed", "error", err)
			return err
		}
		staged, release = out, rel
		return nil
	})
	if err != nil {
		return nil, func() {}, err
	}

	return staged, release, nil
}

func (e *Engine) attempt(ctx context.Context, req Request) (string, error) {
	var text string

	err := retry.Do(ctx, e.retryCfg, IsRetryable, func(ctx context.Context) error {
		out, err := e.capability.Generate(ctx, req)
		if err != nil {
			slog.Debug("Generate failed", "strictness", req.Strictness, "error", err)
			return err
		}
		text = out
		return nil
	})

	return text, err
}
