package ai

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/tube-digest/app/media"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"

	// Request bodies above this go through the Files API instead of inline data.
	maxInlineBytes = 18 << 20

	filePollInterval = 2 * time.Second
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

var rejectionReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"RECITATION":         true,
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute throttles generateContent calls; zero disables it.
	RequestsPerMinute int
}

var (
	_ Capability = (*GeminiClient)(nil)
	_ Stager     = (*GeminiClient)(nil)
)

// GeminiClient implements Capability on the Gemini REST API.
type GeminiClient struct {
	httpClient   *http.Client
	apiKey       string
	model        string
	baseURL      string
	timeout      time.Duration
	limiter      *rate.Limiter
	inlineLimit  int
	pollInterval time.Duration
}

func NewGeminiClient(httpClient *http.Client, cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &GeminiClient{
		httpClient:   httpClient,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      cfg.BaseURL,
		timeout:      cfg.Timeout,
		limiter:      rate.NewLimiter(limit, 1),
		inlineLimit:  maxInlineBytes,
		pollInterval: filePollInterval,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	Contents       []content       `json:"contents"`
	SafetySettings []safetySetting `json:"safetySettings"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type uploadedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

func threshold(s Strictness) string {
	if s == StrictnessMinimum {
		return "BLOCK_NONE"
	}
	return "BLOCK_MEDIUM_AND_ABOVE"
}

func safetySettings(s Strictness) []safetySetting {
	settings := make([]safetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		settings = append(settings, safetySetting{Category: category, Threshold: threshold(s)})
	}
	return settings
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, cleanup, err := c.payloadPart(timeoutCtx, req)
	if err != nil {
		return "", err
	}
	defer cleanup()

	parts := []part{payload, {Text: req.Instruction}}
	if req.Audio == nil {
		parts = []part{{Text: req.Instruction}, payload}
	}

	body := generateRequest{
		Contents:       []content{{Role: "user", Parts: parts}},
		SafetySettings: safetySettings(req.Strictness),
	}

	if err := c.limiter.Wait(timeoutCtx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var resp generateResponse
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	if err := c.doJSON(timeoutCtx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", err
	}

	return responseText(&resp)
}

func responseText(resp *generateResponse) (string, error) {
	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrRejected, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", ErrRejected)
	}

	candidate := resp.Candidates[0]
	if rejectionReasons[candidate.FinishReason] {
		return "", fmt.Errorf("%w: finish reason %s", ErrRejected, candidate.FinishReason)
	}

	var buf bytes.Buffer
	for _, p := range candidate.Content.Parts {
		buf.WriteString(p.Text)
	}

	return buf.String(), nil
}

// payloadPart builds the part holding the request payload. The returned
// cleanup releases any file uploaded for it.
func (c *GeminiClient) payloadPart(ctx context.Context, req Request) (part, func(), error) {
	noop := func() {}

	if req.Audio == nil {
		return part{Text: req.Text}, noop, nil
	}

	audio := req.Audio
	if audio.IsReference() {
		return part{FileData: &fileData{MimeType: audio.MIMEType, FileURI: audio.SourceURL}}, noop, nil
	}

	if len(audio.Data) <= c.inlineLimit {
		return part{InlineData: &inlineData{MimeType: audio.MIMEType, Data: audio.Data}}, noop, nil
	}

	staged, release, err := c.Stage(ctx, audio)
	if err != nil {
		return part{}, noop, err
	}

	return part{FileData: &fileData{MimeType: staged.MIMEType, FileURI: staged.SourceURL}}, release, nil
}

// Stage uploads audio above the inline limit through the Files API and
// returns a reference to the uploaded file. Smaller or referenced audio is
// returned unchanged.
func (c *GeminiClient) Stage(ctx context.Context, audio *media.Audio) (*media.Audio, func(), error) {
	noop := func() {}

	if audio.IsReference() || len(audio.Data) <= c.inlineLimit {
		return audio, noop, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	file, err := c.uploadFile(timeoutCtx, audio.Data, audio.MIMEType)
	if err != nil {
		return nil, noop, err
	}

	release := func() {
		// own context, the request context may already be done
		deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.doJSON(deleteCtx, http.MethodDelete, c.baseURL+"/v1beta/"+file.Name, nil, nil); err != nil {
			slog.Warn("Failed to delete uploaded file", "file", file.Name, "error", err)
		}
	}

	staged := &media.Audio{MIMEType: cmp.Or(file.MimeType, audio.MIMEType), SourceURL: file.URI}
	return staged, release, nil
}

func (c *GeminiClient) uploadFile(ctx context.Context, data []byte, mimeType string) (*uploadedFile, error) {
	start, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": "tube-digest-audio"}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files", bytes.NewReader(start))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start upload: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: "upload start failed"}
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, errors.New("upload start response has no upload URL")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	var uploaded struct {
		File uploadedFile `json:"file"`
	}
	if err := c.do(req, &uploaded); err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	file := &uploaded.File
	slog.Debug("Audio uploaded", "file", file.Name, "bytes", len(data))

	for file.State != "ACTIVE" {
		if file.State == "FAILED" {
			return nil, fmt.Errorf("uploaded file %s failed processing", file.Name)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for file %s: %w", file.Name, ctx.Err())
		case <-time.After(c.pollInterval):
		}

		var polled uploadedFile
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v1beta/"+file.Name, nil, &polled); err != nil {
			return nil, fmt.Errorf("failed to poll file %s: %w", file.Name, err)
		}
		file = &polled
	}

	return file, nil
}

func (c *GeminiClient) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *GeminiClient) do(req *http.Request, out any) error {
	req.Header.Set("x-goog-api-key", c.apiKey)

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
		return &StatusError{StatusCode: resp.StatusCode, Message: truncate(string(data), 300)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
