package pipeline

import (
	"errors"
	"time"

	"github.com/lysyi3m/tube-digest/app/failure"
)

type Failure struct {
	Kind    failure.Kind `json:"kind"`
	Channel string       `json:"channel"`
	ItemID  string       `json:"item_id,omitempty"`
	Stage   string       `json:"stage"`
	Message string       `json:"message"`
}

// RunResult summarises one run. Every item read from a feed ends up in
// exactly one of Skipped, Filtered, Succeeded or Failed unless the run was
// interrupted.
type RunResult struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Seen        int       `json:"seen"`
	Skipped     int       `json:"skipped"`
	Filtered    int       `json:"filtered"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Interrupted bool      `json:"interrupted,omitempty"`
	Failures    []Failure `json:"failures"`
}

func newRunResult(id string) *RunResult {
	return &RunResult{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Failures:  []Failure{},
	}
}

// addFailure records a classified failure. Failures that carry an item id
// count towards Failed.
func (r *RunResult) addFailure(err error) {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		fe = failure.Wrap(err, "", "", "")
	}

	r.Failures = append(r.Failures, Failure{
		Kind:    fe.Kind,
		Channel: fe.Channel,
		ItemID:  fe.ItemID,
		Stage:   fe.Stage,
		Message: fe.Err.Error(),
	})

	if fe.ItemID != "" {
		r.Failed++
	}
}

func (r *RunResult) finish() {
	r.FinishedAt = time.Now().UTC()
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode is 0 for a clean run and 1 when anything failed or the run was
// interrupted.
func (r *RunResult) ExitCode() int {
	if len(r.Failures) > 0 || r.Interrupted {
		return 1
	}
	return 0
}
