package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

type createConfigRequest struct {
	UID          string                   `json:"uid"`
	WorkflowName string                   `json:"workflow_name"`
	IsActive     *bool                    `json:"is_active"`
	Variables    []models.FieldDefinition `json:"variables"`
}

// CreateConfig creates a workflow config.
// (POST /api/v1/config)
func (s *Server) CreateConfig(c echo.Context) error {
	var req createConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	config, err := s.Service.CreateConfig(c.Request().Context(), services.CreateConfigInput{
		UID:          req.UID,
		WorkflowName: req.WorkflowName,
		IsActive:     req.IsActive,
		Variables:    req.Variables,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, config)
}

// ListConfigs returns all workflow configs.
// (GET /api/v1/config)
func (s *Server) ListConfigs(c echo.Context) error {
	configs, err := s.Service.ListConfigs(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, configs)
}

// GetConfig returns a workflow config, creating it on first access.
// (GET /api/v1/config/:uid)
func (s *Server) GetConfig(c echo.Context) error {
	config, err := s.Service.GetOrCreateConfig(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, config)
}

type updateConfigRequest struct {
	WorkflowName *string                   `json:"workflow_name"`
	IsActive     *bool                     `json:"is_active"`
	Variables    *[]models.FieldDefinition `json:"variables"`
}

// UpdateConfig applies a partial update to a workflow config.
// (PATCH /api/v1/config/:uid)
func (s *Server) UpdateConfig(c echo.Context) error {
	var req updateConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	config, err := s.Service.UpdateConfig(c.Request().Context(), c.Param("uid"), services.ConfigUpdate{
		WorkflowName: req.WorkflowName,
		IsActive:     req.IsActive,
		Variables:    req.Variables,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, config)
}
