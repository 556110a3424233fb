package tasks

import "github.com/lysyi3m/tube-digest/app/pipeline"

// TaskSchedulerInterface is what the trigger API needs from the scheduler.
//
//	scheduler := NewScheduler(0)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRunTask(orchestrator))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Active() string
	Last() *pipeline.RunResult
}
