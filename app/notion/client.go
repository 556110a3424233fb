// Package notion stores processed records as pages of a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/tube-digest/app/database"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"

	maxTextLength = 2000
	// A page create call accepts 100 children; two are taken by the
	// heading and divider.
	initialChunks = 98
	appendBatch   = 100

	transcriptHeading = "Full Transcript"
)

type Client struct {
	httpClient *http.Client
	apiKey     string
	databaseID string
	baseURL    string
	limiter    *rate.Limiter
}

func NewClient(httpClient *http.Client, apiKey, databaseID string) *Client {
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		databaseID: databaseID,
		baseURL:    DefaultBaseURL,
		// Notion allows an average of three requests per second
		limiter: rate.NewLimiter(rate.Every(350*time.Millisecond), 1),
	}
}

type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notion HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) Exists(ctx context.Context, itemID string) (bool, error) {
	query := map[string]any{
		"filter": map[string]any{
			"property": "Video ID",
			"rich_text": map[string]any{
				"equals": itemID,
			},
		},
		"page_size": 1,
	}

	var resp struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+c.databaseID+"/query", query, &resp); err != nil {
		return false, fmt.Errorf("failed to query database: %w", err)
	}

	return len(resp.Results) > 0, nil
}

// Create adds a page for the record. Notion has no unique constraint, so a
// concurrent writer passing the same Exists check can still create a
// second page. Transcript blocks beyond the first call are appended
// afterwards; a failed append leaves the page with a partial transcript
// and is only logged.
func (c *Client) Create(ctx context.Context, record *database.Record) (bool, error) {
	chunks := paragraphBlocks(record.Transcript)

	children := []block{headingBlock(transcriptHeading), dividerBlock()}
	children = append(children, chunks[:min(len(chunks), initialChunks)]...)

	page := map[string]any{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": pageProperties(record),
		"children":   children,
	}

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/pages", page, &created); err != nil {
		return false, fmt.Errorf("failed to create page: %w", err)
	}

	slog.Debug("Notion page created", "item_id", record.ItemID, "page_id", created.ID, "blocks", len(children))

	if len(chunks) > initialChunks {
		if err := c.appendBlocks(ctx, created.ID, chunks[initialChunks:]); err != nil {
			slog.Warn("Failed to append transcript blocks", "item_id", record.ItemID, "page_id", created.ID, "error", err)
		}
	}

	return true, nil
}

func (c *Client) appendBlocks(ctx context.Context, pageID string, blocks []block) error {
	for start := 0; start < len(blocks); start += appendBatch {
		end := min(start+appendBatch, len(blocks))
		body := map[string]any{"children": blocks[start:end]}

		if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+pageID+"/children", body, nil); err != nil {
			return fmt.Errorf("failed to append blocks %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func pageProperties(record *database.Record) map[string]any {
	date := record.PublishedDate()
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}

	properties := map[string]any{
		"Channel":  map[string]any{"title": richText(record.ChannelName)},
		"Title":    map[string]any{"rich_text": richText(record.Title)},
		"Date":     map[string]any{"date": map[string]string{"start": date}},
		"Summary":  map[string]any{"rich_text": richText(record.Summary)},
		"Video ID": map[string]any{"rich_text": richText(record.ItemID)},
	}
	if record.URL != "" {
		properties["URL"] = map[string]any{"url": record.URL}
	}

	return properties
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Code + ": " + apiErr.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// truncate limits s to maxTextLength characters, marking the cut with "...".
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTextLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTextLength-3]) + "..."
}
