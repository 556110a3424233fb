package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/tube-digest/app/media"
	"github.com/lysyi3m/tube-digest/app/retry"
)

type recordedRequest struct {
	path   string
	header http.Header
	body   []byte
}

type geminiServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
}

func (s *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{path: r.URL.Path, header: r.Header.Clone(), body: body})
	s.mu.Unlock()
	s.handler(w, r, body)
}

func newTestGemini(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) (*GeminiClient, *geminiServer) {
	t.Helper()
	gs := &geminiServer{handler: handler}
	server := httptest.NewServer(gs)
	t.Cleanup(server.Close)

	client := NewGeminiClient(server.Client(), GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	client.pollInterval = time.Millisecond
	return client, gs
}

func textResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonString(text) + `}]},"finishReason":"STOP"}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGeminiGenerateInlineAudio(t *testing.T) {
	client, gs := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Write([]byte(textResponse("hello transcript")))
	})

	text, err := client.Generate(context.Background(), Request{
		Audio:       &media.Audio{Data: []byte("abc"), MIMEType: "audio/mp4"},
		Instruction: "transcribe",
		Strictness:  StrictnessDefault,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != "hello transcript" {
		t.Errorf("Expected 'hello transcript', got: %s", text)
	}

	if len(gs.requests) != 1 {
		t.Fatalf("Expected 1 request, got: %d", len(gs.requests))
	}
	req := gs.requests[0]
	if req.path != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Errorf("Unexpected path: %s", req.path)
	}
	if req.header.Get("x-goog-api-key") != "test-key" {
		t.Errorf("Expected API key header, got: %s", req.header.Get("x-goog-api-key"))
	}

	var sent generateRequest
	if err := json.Unmarshal(req.body, &sent); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	parts := sent.Contents[0].Parts
	if parts[0].InlineData == nil || string(parts[0].InlineData.Data) != "abc" {
		t.Errorf("Expected inline audio data, got: %+v", parts[0])
	}
	if parts[1].Text != "transcribe" {
		t.Errorf("Expected instruction part, got: %+v", parts[1])
	}
	if len(sent.SafetySettings) != len(harmCategories) {
		t.Fatalf("Expected %d safety settings, got: %d", len(harmCategories), len(sent.SafetySettings))
	}
	for _, s := range sent.SafetySettings {
		if s.Threshold != "BLOCK_MEDIUM_AND_ABOVE" {
			t.Errorf("Expected default threshold, got: %s", s.Threshold)
		}
	}
}

func TestGeminiMinimumStrictness(t *testing.T) {
	client, gs := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Write([]byte(textResponse("ok")))
	})

	if _, err := client.Generate(context.Background(), Request{Text: "t", Instruction: "i", Strictness: StrictnessMinimum}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var sent generateRequest
	json.Unmarshal(gs.requests[0].body, &sent)
	for _, s := range sent.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Errorf("Expected BLOCK_NONE, got: %s", s.Threshold)
		}
	}
	if sent.Contents[0].Parts[0].Text != "i" || sent.Contents[0].Parts[1].Text != "t" {
		t.Errorf("Expected instruction followed by text, got: %+v", sent.Contents[0].Parts)
	}
}

func TestGeminiURLReference(t *testing.T) {
	client, gs := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Write([]byte(textResponse("ok")))
	})

	_, err := client.Generate(context.Background(), Request{
		Audio:       &media.Audio{SourceURL: "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		Instruction: "i",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var sent generateRequest
	json.Unmarshal(gs.requests[0].body, &sent)
	fd := sent.Contents[0].Parts[0].FileData
	if fd == nil || fd.FileURI != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Errorf("Expected file reference to the video URL, got: %+v", fd)
	}
}

func TestGeminiRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"finish reason safety", `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`},
		{"prompt blocked", `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`},
		{"no candidates", `{"candidates":[]}`},
		{"recitation", `{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"RECITATION"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
				w.Write([]byte(tt.body))
			})

			_, err := client.Generate(context.Background(), Request{Text: "t", Instruction: "i"})
			if !errors.Is(err, ErrRejected) {
				t.Errorf("Expected ErrRejected, got: %v", err)
			}
			if IsRetryable(err) {
				t.Error("Rejection must not be retryable")
			}
		})
	}
}

func TestGeminiStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := client.Generate(context.Background(), Request{Text: "t", Instruction: "i"})
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected StatusError, got: %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got: %d", tt.status, statusErr.StatusCode)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v for %d", tt.retryable, tt.status)
			}
		})
	}
}

func TestGeminiLargeAudioUsesFilesAPI(t *testing.T) {
	var uploadURL string
	polls := 0

	client, gs := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch {
		case r.URL.Path == "/upload/v1beta/files":
			if r.Header.Get("X-Goog-Upload-Command") != "start" {
				t.Errorf("Expected start command, got: %s", r.Header.Get("X-Goog-Upload-Command"))
			}
			if r.Header.Get("X-Goog-Upload-Header-Content-Length") != "10" {
				t.Errorf("Expected content length 10, got: %s", r.Header.Get("X-Goog-Upload-Header-Content-Length"))
			}
			w.Header().Set("X-Goog-Upload-URL", uploadURL)
		case r.URL.Path == "/resumable":
			if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
				t.Errorf("Expected finalize command, got: %s", r.Header.Get("X-Goog-Upload-Command"))
			}
			if string(body) != "0123456789" {
				t.Errorf("Expected audio bytes in upload, got: %q", body)
			}
			w.Write([]byte(`{"file":{"name":"files/abc","uri":"https://files/abc","mimeType":"audio/mp4","state":"PROCESSING"}}`))
		case r.URL.Path == "/v1beta/files/abc" && r.Method == http.MethodGet:
			polls++
			w.Write([]byte(`{"name":"files/abc","uri":"https://files/abc","mimeType":"audio/mp4","state":"ACTIVE"}`))
		case r.URL.Path == "/v1beta/files/abc" && r.Method == http.MethodDelete:
			w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			var sent generateRequest
			json.Unmarshal(body, &sent)
			fd := sent.Contents[0].Parts[0].FileData
			if fd == nil || fd.FileURI != "https://files/abc" {
				t.Errorf("Expected uploaded file reference, got: %+v", sent.Contents[0].Parts[0])
			}
			w.Write([]byte(textResponse("long transcript")))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client.inlineLimit = 5
	uploadURL = client.baseURL + "/resumable"

	text, err := client.Generate(context.Background(), Request{
		Audio:       &media.Audio{Data: []byte("0123456789"), MIMEType: "audio/mp4"},
		Instruction: "transcribe",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != "long transcript" {
		t.Errorf("Expected 'long transcript', got: %s", text)
	}
	if polls != 1 {
		t.Errorf("Expected 1 poll, got: %d", polls)
	}

	last := gs.requests[len(gs.requests)-1]
	if last.path != "/v1beta/files/abc" {
		t.Errorf("Expected uploaded file to be deleted last, got: %s", last.path)
	}
}

func TestGeminiStageUploadsOnce(t *testing.T) {
	var uploadURL string
	uploads, deletes, generates := 0, 0, 0

	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch {
		case r.URL.Path == "/upload/v1beta/files":
			w.Header().Set("X-Goog-Upload-URL", uploadURL)
		case r.URL.Path == "/resumable":
			uploads++
			w.Write([]byte(`{"file":{"name":"files/abc","uri":"https://files/abc","mimeType":"audio/mp4","state":"ACTIVE"}}`))
		case r.URL.Path == "/v1beta/files/abc" && r.Method == http.MethodDelete:
			deletes++
			w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			generates++
			var sent generateRequest
			json.Unmarshal(body, &sent)
			if fd := sent.Contents[0].Parts[0].FileData; fd == nil || fd.FileURI != "https://files/abc" {
				t.Errorf("Expected uploaded file reference, got: %+v", sent.Contents[0].Parts[0])
			}
			if generates == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(textResponse("long transcript")))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client.inlineLimit = 5
	uploadURL = client.baseURL + "/resumable"

	engine := NewEngine(client, retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1})

	text, err := engine.Transcribe(context.Background(), &media.Audio{Data: []byte("0123456789"), MIMEType: "audio/mp4"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text != "long transcript" {
		t.Errorf("Expected 'long transcript', got: %s", text)
	}
	if generates != 2 {
		t.Errorf("Expected 2 generate calls, got: %d", generates)
	}
	if uploads != 1 {
		t.Errorf("Expected audio uploaded once, got: %d", uploads)
	}
	if deletes != 1 {
		t.Errorf("Expected uploaded file deleted once, got: %d", deletes)
	}
}

func TestGeminiStageKeepsSmallAudio(t *testing.T) {
	client, gs := newTestGemini(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
	})

	audio := &media.Audio{Data: []byte("tiny"), MIMEType: "audio/mp4"}
	staged, release, err := client.Stage(context.Background(), audio)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	release()

	if staged != audio {
		t.Errorf("Expected small audio returned unchanged, got: %+v", staged)
	}
	if len(gs.requests) != 0 {
		t.Errorf("Expected no requests, got: %d", len(gs.requests))
	}
}
