package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"feed", fmt.Errorf("%w: HTTP 500", ErrFeedUnavailable), KindFeedUnavailable},
		{"store", fmt.Errorf("exists check: %w", ErrStoreUnreachable), KindStoreUnreachable},
		{"media", fmt.Errorf("%w: %w", ErrMediaUnavailable, errors.New("403")), KindMediaUnavailable},
		{"rejected", ErrTranscriptionRejected, KindTranscriptionRejected},
		{"service", fmt.Errorf("%w: quota", ErrTranscriptionServiceError), KindTranscriptionServiceError},
		{"persistence", fmt.Errorf("%w: insert", ErrPersistenceError), KindPersistenceError},
		{"config", fmt.Errorf("%w: GEMINI_API_KEY", ErrConfigurationMissing), KindConfigurationMissing},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Expected kind '%s', got: '%s'", tt.want, got)
			}
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	cause := fmt.Errorf("%w: video removed", ErrMediaUnavailable)
	err := Wrap(cause, "Mogul Mail", "abc123", "Fetching")

	if err.Kind != KindMediaUnavailable {
		t.Errorf("Expected kind MediaUnavailable, got: %s", err.Kind)
	}
	if !errors.Is(err, ErrMediaUnavailable) {
		t.Error("Expected wrapped error to match ErrMediaUnavailable")
	}
	if Classify(fmt.Errorf("outer: %w", err)) != KindMediaUnavailable {
		t.Error("Expected classification to survive further wrapping")
	}
	if err.Error() == "" {
		t.Error("Expected non-empty error message")
	}
}

func TestFatal(t *testing.T) {
	if !Fatal(fmt.Errorf("%w: NOTION_API_KEY", ErrConfigurationMissing)) {
		t.Error("Expected missing configuration to be fatal")
	}
	if Fatal(ErrFeedUnavailable) {
		t.Error("Expected feed failure to be non-fatal")
	}
}
