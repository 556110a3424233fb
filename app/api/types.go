package api

import "github.com/lysyi3m/tube-digest/app/tasks"

type Handler struct {
	runner    tasks.Runner
	scheduler tasks.TaskSchedulerInterface
	version   string
}
