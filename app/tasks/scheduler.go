package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/tube-digest/app/pipeline"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

var (
	ErrBusy    = errors.New("a run is already in progress")
	ErrStopped = errors.New("scheduler stopped")
)

// Scheduler executes one task at a time on a single worker. A task is
// accepted only while no other task is queued or running.
type Scheduler struct {
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	mu     sync.Mutex
	active TaskInterface
	last   *pipeline.RunResult
}

// NewScheduler creates a scheduler. A zero timeout leaves tasks unbounded.
func NewScheduler(timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 1),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()
}

// Stop cancels the running task and waits for the worker to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if s.ctx.Err() != nil {
		return ErrStopped
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return ErrBusy
	}

	select {
	case s.taskQueue <- task:
		s.active = task
		return nil
	default:
		return ErrBusy
	}
}

// Active returns the id of the queued or running task, or "".
func (s *Scheduler) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ""
	}
	return s.active.GetID()
}

// Last returns the result of the most recent finished run.
func (s *Scheduler) Last() *pipeline.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(s.ctx, s.timeout)
	}
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "error", err)
	} else {
		slog.Debug("Task completed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration().String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := task.(*RunTask); ok {
		if result := rt.Result(); result != nil {
			s.last = result
		}
	}
	s.active = nil
}
