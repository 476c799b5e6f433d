package handler

import (
	"context"
	"net/http"

	"auction-engine/internal/scheduler"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// SchedulerController exposes the auction sweep to operators
type SchedulerController interface {
	TriggerSweep(ctx context.Context) scheduler.SweepReport
	Status() scheduler.Status
}

type SchedulerHandler struct {
	scheduler SchedulerController
}

func NewSchedulerHandler(s SchedulerController) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// TriggerSweepHandler handles POST /scheduler/trigger
func (h *SchedulerHandler) TriggerSweepHandler(c *gin.Context) {
	report := h.scheduler.TriggerSweep(c.Request.Context())

	utils.JSONResponse(c, http.StatusOK, report, "sweep completed")
	helpers.LogSuccess("TriggerSweepHandler", "sweep completed", map[string]any{
		"started":  len(report.Started),
		"ended":    len(report.Ended),
		"failures": len(report.Failures),
	})
}

// StatusHandler handles GET /scheduler/status
func (h *SchedulerHandler) StatusHandler(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, h.scheduler.Status(), "scheduler status retrieved successfully")
}
