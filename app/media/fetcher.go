package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lysyi3m/tube-digest/app/failure"
)

type Mode string

const (
	// ModeDownload extracts the audio track locally and sends its bytes.
	ModeDownload Mode = "download"
	// ModeURL hands the source URL to the AI service without downloading.
	ModeURL Mode = "url"
)

// Audio is the payload handed to the transcription engine. Data is empty
// in URL mode.
type Audio struct {
	Data      []byte
	MIMEType  string
	SourceURL string
}

func (a *Audio) IsReference() bool {
	return len(a.Data) == 0 && a.SourceURL != ""
}

type Fetcher struct {
	ytdlpPath string
	timeout   time.Duration
	mode      Mode
}

func NewFetcher(ytdlpPath string, timeout time.Duration, mode Mode) *Fetcher {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	if mode == "" {
		mode = ModeDownload
	}
	return &Fetcher{
		ytdlpPath: ytdlpPath,
		timeout:   timeout,
		mode:      mode,
	}
}

// Fetch retrieves the audio of a video. Every failure is reported as
// failure.ErrMediaUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (*Audio, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: empty source URL", failure.ErrMediaUnavailable)
	}

	if f.mode == ModeURL {
		return &Audio{SourceURL: sourceURL}, nil
	}

	dir, err := os.MkdirTemp("", "tube-digest-*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp dir: %w", failure.ErrMediaUnavailable, err)
	}
	defer os.RemoveAll(dir)

	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := []string{
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"-x",
		"--audio-format", "m4a",
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
		"--print", "after_move:filepath",
		sourceURL,
	}

	stdout, err := f.run(timeoutCtx, args...)
	if err != nil {
		return nil, err
	}

	path := outputPath(stdout, dir)
	if path == "" {
		return nil, fmt.Errorf("%w: yt-dlp produced no audio file", failure.ErrMediaUnavailable)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio file: %w", failure.ErrMediaUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: audio file is empty", failure.ErrMediaUnavailable)
	}

	slog.Debug("Audio downloaded", "url", sourceURL, "bytes", len(data))

	return &Audio{
		Data:      data,
		MIMEType:  mimeType(path),
		SourceURL: sourceURL,
	}, nil
}

// ResolveChannelID looks up the channel id behind an @handle.
func (f *Fetcher) ResolveChannelID(ctx context.Context, handle string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	stdout, err := f.run(timeoutCtx,
		"--skip-download",
		"--no-warnings",
		"--playlist-items", "1",
		"--print", "channel_id",
		"https://www.youtube.com/"+handle+"/videos",
	)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "UC") {
			return line, nil
		}
	}

	return "", fmt.Errorf("no channel id found for %s", handle)
}

func (f *Fetcher) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, f.ytdlpPath, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: yt-dlp timed out: %w", failure.ErrMediaUnavailable, ctx.Err())
		}
		stderrStr := strings.TrimSpace(stderr.String())
		return "", fmt.Errorf("%w: %s: %w", failure.ErrMediaUnavailable, classifyStderr(stderrStr), err)
	}

	return stdout.String(), nil
}

// classifyStderr names the reason yt-dlp gave for refusing a video.
func classifyStderr(stderr string) string {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "http error 403"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "members-only"),
		strings.Contains(lower, "join this channel"),
		strings.Contains(lower, "sign in to confirm"):
		return "access denied"
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "account associated with this video has been terminated"),
		strings.Contains(lower, "http error 404"):
		return "video removed or unavailable"
	case strings.Contains(lower, "premieres in"),
		strings.Contains(lower, "live event will begin"):
		return "video not yet available"
	case stderr == "":
		return "yt-dlp failed"
	}

	// last line is the most specific
	lines := strings.Split(stderr, "\n")
	return "yt-dlp failed: " + strings.TrimSpace(lines[len(lines)-1])
}

func outputPath(stdout, dir string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if _, err := os.Stat(line); err == nil {
			return line
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "audio.*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

var mimeTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".webm": "audio/webm",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

func mimeType(path string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "audio/mp4"
}
