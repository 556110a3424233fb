package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/tube-digest/app/channel"
	"github.com/lysyi3m/tube-digest/app/failure"
)

const (
	// MaxItems is the number of newest entries considered per channel and run.
	MaxItems = 5

	youtubeFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id="
)

// Resolver turns an @handle into a channel id.
type Resolver interface {
	ResolveChannelID(ctx context.Context, handle string) (string, error)
}

type Reader struct {
	httpClient *http.Client
	parser     *Parser
	resolver   Resolver
	userAgent  string
	timeout    time.Duration

	mu       sync.Mutex
	resolved map[string]string
}

func NewReader(httpClient *http.Client, parser *Parser, resolver Resolver, userAgent string, timeout time.Duration) *Reader {
	return &Reader{
		httpClient: httpClient,
		parser:     parser,
		resolver:   resolver,
		userAgent:  userAgent,
		timeout:    timeout,
		resolved:   make(map[string]string),
	}
}

// Read returns up to MaxItems entries of the channel feed, newest first.
// Every failure is reported as failure.ErrFeedUnavailable.
func (r *Reader) Read(ctx context.Context, ch channel.Channel) ([]Item, error) {
	feedURL, err := r.feedURL(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrFeedUnavailable, err)
	}

	data, err := r.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrFeedUnavailable, err)
	}

	metadata, items, err := r.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrFeedUnavailable, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})

	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	for i := range items {
		if items[i].ChannelID == "" {
			items[i].ChannelID = ch.ID
		}
		items[i].ChannelName = ch.Name
	}

	slog.Debug("Feed read", "channel", ch.Name, "channel_id", metadata.ChannelID, "feed_title", metadata.Title, "items", len(items))
	return items, nil
}

func (r *Reader) feedURL(ctx context.Context, ch channel.Channel) (string, error) {
	if ch.FeedURL != "" {
		return ch.FeedURL, nil
	}

	id := ch.ID
	if ch.IsHandle() {
		resolved, err := r.resolve(ctx, ch.ID)
		if err != nil {
			return "", err
		}
		id = resolved
	}

	return youtubeFeedURL + url.QueryEscape(id), nil
}

func (r *Reader) resolve(ctx context.Context, handle string) (string, error) {
	r.mu.Lock()
	id, ok := r.resolved[handle]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	if r.resolver == nil {
		return "", fmt.Errorf("no resolver configured for handle %s", handle)
	}

	id, err := r.resolver.ResolveChannelID(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("failed to resolve handle %s: %w", handle, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("handle %s resolved to an empty channel id", handle)
	}

	r.mu.Lock()
	r.resolved[handle] = id
	r.mu.Unlock()

	slog.Debug("Channel handle resolved", "handle", handle, "channel_id", id)
	return id, nil
}

func (r *Reader) fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
