package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/tube-digest/app/tasks"
)

func NewHandler(runner tasks.Runner, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		runner:    runner,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"running":   h.scheduler.Active() != "",
	}

	if last := h.scheduler.Last(); last != nil {
		health["last_run"] = gin.H{
			"id":          last.ID,
			"finished_at": last.FinishedAt,
			"failed":      last.Failed,
		}
	}

	c.JSON(http.StatusOK, health)
}

// TriggerRun starts a run. With ?wait=true the response carries the
// finished RunResult; otherwise it returns 202 with the run id.
func (h *Handler) TriggerRun(c *gin.Context) {
	task := tasks.NewRunTask(h.runner)

	if err := h.scheduler.EnqueueTask(task); err != nil {
		if errors.Is(err, tasks.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "A run is already in progress",
				"active": h.scheduler.Active(),
			})
			return
		}
		slog.Error("Error enqueueing run", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue run",
			"details": err.Error(),
		})
		return
	}

	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, gin.H{
			"id":     task.ID,
			"status": "accepted",
		})
		return
	}

	result, err := task.Wait(c.Request.Context())
	if err != nil {
		slog.Warn("Client left before the run finished", "run_id", task.ID, "error", err)
		c.JSON(http.StatusAccepted, gin.H{
			"id":     task.ID,
			"status": "running",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetLatestRun(c *gin.Context) {
	last := h.scheduler.Last()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "No run has finished yet",
			"active": h.scheduler.Active(),
		})
		return
	}

	c.JSON(http.StatusOK, last)
}
