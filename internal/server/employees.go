package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skillsmith/coursegen/internal/store"
)

type EmployeesHandler struct {
	Store *store.Store
}

func (h *EmployeesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id/profile", h.updateProfile)
}

func (h *EmployeesHandler) list(c echo.Context) error {
	items, err := h.Store.ListEmployees(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *EmployeesHandler) create(c echo.Context) error {
	var req EmployeeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and email required")
	}
	profile, _ := json.Marshal(req.Profile)
	id, err := h.Store.CreateEmployee(c.Request().Context(), store.EmployeeRecord{
		Name:       req.Name,
		Email:      req.Email,
		Role:       req.Role,
		Department: req.Department,
		Profile:    profile,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *EmployeesHandler) get(c echo.Context) error {
	rec, ok, err := h.Store.GetEmployee(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "employee not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *EmployeesHandler) updateProfile(c echo.Context) error {
	var profile map[string]interface{}
	if err := c.Bind(&profile); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	raw, _ := json.Marshal(profile)
	if err := h.Store.UpdateEmployeeProfile(c.Request().Context(), c.Param("id"), raw); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
