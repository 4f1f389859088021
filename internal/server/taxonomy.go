package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/skillsmith/coursegen/internal/runtime"
	"github.com/skillsmith/coursegen/internal/store"
	"github.com/skillsmith/coursegen/internal/taxonomy"
)

// TaxonomyHandler serves the skills taxonomy and its full-text index.
// Upserts write through to both Postgres and the index.
type TaxonomyHandler struct {
	Store *store.Store
	Index *taxonomy.Index
}

func (h *TaxonomyHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.POST("", h.upsert, runtime.RequireScopes(ScopeCourses))
}

func (h *TaxonomyHandler) list(c echo.Context) error {
	items, err := h.Store.ListSkills(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *TaxonomyHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *TaxonomyHandler) upsert(c echo.Context) error {
	var req SkillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	rec := store.SkillRecord{
		Name:              req.Name,
		Category:          req.Category,
		Description:       req.Description,
		ProficiencyLevels: req.ProficiencyLevels,
	}
	id, err := h.Store.UpsertSkill(c.Request().Context(), rec)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rec.ID = id
	if err := h.Index.IndexSkill(rec); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}
