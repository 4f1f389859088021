package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	core "github.com/skillsmith/coursegen/internal/agent/core"
	"github.com/skillsmith/coursegen/internal/store"
)

// MediaHandler triggers narration for finished module content and exposes
// the resulting sessions. Narrator is nil when media is disabled.
type MediaHandler struct {
	Store    *store.Store
	Narrator core.Narrator
}

func (h *MediaHandler) Register(g *echo.Group) {
	g.POST("/narrate", h.narrate)
	g.GET("/:id", h.get)
}

func (h *MediaHandler) narrate(c echo.Context) error {
	if h.Narrator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "media generation disabled")
	}
	var req NarrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PlanID == "" || req.ModuleNumber <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "plan_id and module_number required")
	}
	ctx := c.Request().Context()
	rec, ok, err := h.Store.GetModuleContent(ctx, req.PlanID, req.ModuleNumber)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "module content not found")
	}
	content := core.ModuleContent{
		ID:           rec.ID,
		PlanID:       rec.PlanID,
		ModuleNumber: rec.ModuleNumber,
		Title:        rec.Title,
		WordCount:    rec.WordCount,
		Status:       rec.Status,
	}
	if err := json.Unmarshal(rec.Sections, &content.Sections); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "decode sections: "+err.Error())
	}
	sessionID, err := h.Narrator.NarrateModule(ctx, content)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"session_id": sessionID})
}

func (h *MediaHandler) get(c echo.Context) error {
	rec, ok, err := h.Store.GetMediaSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "media session not found")
	}
	return c.JSON(http.StatusOK, rec)
}
