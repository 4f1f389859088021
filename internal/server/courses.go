package server

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/queue/streams"
	"github.com/skillsmith/coursegen/internal/store"
)

// CoursesHandler accepts generation requests and reports run progress.
// When Async is set, requests are published to the Redis stream for the
// worker pool; otherwise the orchestrator runs in-process.
type CoursesHandler struct {
	Store        *store.Store
	Orch         *core.Orchestrator
	Publisher    *streams.Publisher
	Stream       string
	MaxLenApprox int64
	Async        bool
	Logger       *log.Logger
}

func (h *CoursesHandler) Register(g *echo.Group) {
	g.POST("/generate", h.generate)
	g.GET("/runs/:id", h.runStatus)
	g.GET("/runs/:id/handoffs", h.runHandoffs)
}

func (h *CoursesHandler) generate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EmployeeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "employee_id required")
	}
	ctx := c.Request().Context()
	if _, ok, err := h.Store.GetEmployee(ctx, req.EmployeeID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "employee not found")
	}

	runID := uuid.NewString()
	if err := h.Store.CreateGenerationRun(ctx, runID, req.EmployeeID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	genReq := core.GenerationRequest{
		RunID:        runID,
		EmployeeID:   req.EmployeeID,
		FocusSkill:   req.FocusSkill,
		IncludeMedia: req.IncludeMedia,
	}

	if h.Async && h.Publisher != nil {
		payload := streams.GenerateRequestedPayload{
			RunID:        genReq.RunID,
			EmployeeID:   genReq.EmployeeID,
			FocusSkill:   genReq.FocusSkill,
			IncludeMedia: genReq.IncludeMedia,
		}
		opts := []streams.PublishOption{}
		if h.MaxLenApprox > 0 {
			opts = append(opts, streams.WithMaxLenApprox(h.MaxLenApprox))
		}
		if _, err := h.Publisher.PublishRaw(ctx, h.Stream, streams.EventCourseGenerateRequested, streams.PayloadVersionV1, payload, opts...); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, RunAccepted{RunID: runID, Status: core.RunStatusPending})
	}

	// in-process run detached from the request lifecycle
	go func() {
		if _, err := h.Orch.GenerateCourse(context.Background(), genReq); err != nil && h.Logger != nil {
			h.Logger.Printf("run %s failed: %v", runID, err)
		}
	}()
	return c.JSON(http.StatusAccepted, RunAccepted{RunID: runID, Status: core.RunStatusPending})
}

func (h *CoursesHandler) runStatus(c echo.Context) error {
	runID := c.Param("id")
	if h.Orch != nil {
		if status, ok := h.Orch.GetStatus(runID); ok {
			return c.JSON(http.StatusOK, status)
		}
	}
	rec, ok, err := h.Store.GetGenerationRun(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	resp := map[string]interface{}{
		"run_id":       rec.ID,
		"stage":        rec.Status,
		"total_tokens": rec.Tokens,
		"total_cost":   rec.Cost,
	}
	if rec.PlanID.Valid {
		resp["plan_id"] = rec.PlanID.String
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CoursesHandler) runHandoffs(c echo.Context) error {
	items, err := h.Store.ListHandoffs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
