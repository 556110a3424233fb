package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindFeedUnavailable           Kind = "FeedUnavailable"
	KindStoreUnreachable          Kind = "StoreUnreachable"
	KindMediaUnavailable          Kind = "MediaUnavailable"
	KindTranscriptionRejected     Kind = "TranscriptionRejected"
	KindTranscriptionServiceError Kind = "TranscriptionServiceError"
	KindPersistenceError          Kind = "PersistenceError"
	KindConfigurationMissing      Kind = "ConfigurationMissing"
	KindUnknown                   Kind = "Unknown"
)

// Components wrap one of these with %w so the orchestrator can classify
// the failure without knowing which component produced it.
var (
	ErrFeedUnavailable           = errors.New("feed unavailable")
	ErrStoreUnreachable          = errors.New("store unreachable")
	ErrMediaUnavailable          = errors.New("media unavailable")
	ErrTranscriptionRejected     = errors.New("transcription rejected")
	ErrTranscriptionServiceError = errors.New("transcription service error")
	ErrPersistenceError          = errors.New("persistence error")
	ErrConfigurationMissing      = errors.New("configuration missing")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrConfigurationMissing, KindConfigurationMissing},
	{ErrFeedUnavailable, KindFeedUnavailable},
	{ErrStoreUnreachable, KindStoreUnreachable},
	{ErrMediaUnavailable, KindMediaUnavailable},
	{ErrTranscriptionRejected, KindTranscriptionRejected},
	{ErrTranscriptionServiceError, KindTranscriptionServiceError},
	{ErrPersistenceError, KindPersistenceError},
}

// Classify maps an error chain onto the taxonomy. Errors that carry no
// sentinel are reported as KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindUnknown
}

// Fatal reports whether a failure must stop the run before it starts.
func Fatal(err error) bool {
	return Classify(err) == KindConfigurationMissing
}

// Error is a classified failure with enough context to reprocess the
// item on a later run.
type Error struct {
	Kind    Kind
	Channel string
	ItemID  string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: channel %s item %s at %s: %v", e.Kind, e.Channel, e.ItemID, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: channel %s at %s: %v", e.Kind, e.Channel, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and attaches channel, item and stage context.
func Wrap(err error, channel, itemID, stage string) *Error {
	return &Error{
		Kind:    Classify(err),
		Channel: channel,
		ItemID:  itemID,
		Stage:   stage,
		Err:     err,
	}
}
