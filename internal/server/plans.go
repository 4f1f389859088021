package server

import (
	"net/http"
	"strconv"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/skillsmith/coursegen/internal/store"
)

type PlansHandler struct {
	Store *store.Store
}

func (h *PlansHandler) Register(g *echo.Group) {
	g.GET("/employees/:id/plans", h.listForEmployee)
	g.GET("/plans/:id", h.get)
	g.GET("/plans/:id/modules/:number", h.module)
	g.PUT("/plans/:id/schedule", h.schedule)
	g.GET("/content/:id/assessments", h.assessments)
}

func (h *PlansHandler) listForEmployee(c echo.Context) error {
	items, err := h.Store.ListCoursePlans(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *PlansHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	plan, ok, err := h.Store.GetCoursePlan(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	content, err := h.Store.ListModuleContent(ctx, plan.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan":    plan,
		"content": content,
	})
}

func (h *PlansHandler) module(c echo.Context) error {
	num, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "module number must be an integer")
	}
	ctx := c.Request().Context()
	planID := c.Param("id")
	content, ok, err := h.Store.GetModuleContent(ctx, planID, num)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "module content not found")
	}
	resp := map[string]interface{}{"content": content}
	if research, ok, err := h.Store.GetResearchSession(ctx, planID, num); err == nil && ok {
		resp["research"] = research
	}
	return c.JSON(http.StatusOK, resp)
}

// schedule sets or clears a plan's refresh cron expression.
func (h *PlansHandler) schedule(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RefreshCron != "" && req.RefreshCron != "@daily" && req.RefreshCron != "@hourly" {
		if _, err := cronexpr.Parse(req.RefreshCron); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cron expression")
		}
	}
	ctx := c.Request().Context()
	plan, ok, err := h.Store.GetCoursePlan(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "plan not found")
	}
	plan.RefreshCron = req.RefreshCron
	if _, err := h.Store.SaveCoursePlan(ctx, plan); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *PlansHandler) assessments(c echo.Context) error {
	items, err := h.Store.ListAssessmentsForContent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
