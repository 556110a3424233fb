package tasks

import (
	"context"

	"github.com/lysyi3m/tube-digest/app/pipeline"
)

type Runner interface {
	Run(ctx context.Context, runID string) *pipeline.RunResult
}

var _ Runner = (*pipeline.Orchestrator)(nil)

// RunTask executes one pipeline run under the task id.
type RunTask struct {
	Task
	runner Runner
	result *pipeline.RunResult
	done   chan struct{}
}

func NewRunTask(runner Runner) *RunTask {
	return &RunTask{
		Task:   NewTask(TaskTypeRun),
		runner: runner,
		done:   make(chan struct{}),
	}
}

// Execute runs the pipeline. The orchestrator logs the run itself.
func (t *RunTask) Execute(ctx context.Context) error {
	defer close(t.done)

	t.result = t.runner.Run(ctx, t.ID)
	return nil
}

// Wait blocks until the run has finished or ctx is done.
func (t *RunTask) Wait(ctx context.Context) (*pipeline.RunResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result is nil until the run has finished.
func (t *RunTask) Result() *pipeline.RunResult {
	select {
	case <-t.done:
		return t.result
	default:
		return nil
	}
}
