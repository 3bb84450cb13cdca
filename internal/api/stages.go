package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

type createStageRequest struct {
	UID               string                 `json:"uid"`
	Config            string                 `json:"config"`
	Name              string                 `json:"name" validate:"required"`
	Slug              string                 `json:"slug"`
	Color             string                 `json:"color"`
	Description       string                 `json:"description"`
	Order             int                    `json:"order"`
	IsActive          *bool                  `json:"is_active"`
	AllowedNextStages []string               `json:"allowed_next_stages"`
	StageTasks        []models.WorkStageTask `json:"stage_tasks"`
}

// CreateStage creates a pipeline stage.
// (POST /api/v1/stages)
func (s *Server) CreateStage(c echo.Context) error {
	var req createStageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	stage, err := s.Service.CreateStage(c.Request().Context(), services.CreateStageInput{
		UID:               req.UID,
		Config:            req.Config,
		Name:              req.Name,
		Slug:              req.Slug,
		Color:             req.Color,
		Description:       req.Description,
		Order:             req.Order,
		IsActive:          req.IsActive,
		AllowedNextStages: req.AllowedNextStages,
		StageTasks:        req.StageTasks,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, stage)
}

// ListStages returns all stages ordered by position.
// (GET /api/v1/stages)
func (s *Server) ListStages(c echo.Context) error {
	stages, err := s.Service.ListStages(c.Request().Context(), c.QueryParam("config"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stages)
}

// GetStage returns one stage by uid.
// (GET /api/v1/stages/:uid)
func (s *Server) GetStage(c echo.Context) error {
	stage, err := s.Service.GetStage(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stage)
}

type updateStageRequest struct {
	Name              *string                 `json:"name"`
	Slug              *string                 `json:"slug"`
	Color             *string                 `json:"color"`
	Description       *string                 `json:"description"`
	Order             *int                    `json:"order"`
	IsActive          *bool                   `json:"is_active"`
	AllowedNextStages *[]string               `json:"allowed_next_stages"`
	StageTasks        *[]models.WorkStageTask `json:"stage_tasks"`
}

// UpdateStage applies a partial update to a stage.
// (PATCH /api/v1/stages/:uid)
func (s *Server) UpdateStage(c echo.Context) error {
	var req updateStageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	stage, err := s.Service.UpdateStage(c.Request().Context(), c.Param("uid"), services.StageUpdate{
		Name:              req.Name,
		Slug:              req.Slug,
		Color:             req.Color,
		Description:       req.Description,
		Order:             req.Order,
		IsActive:          req.IsActive,
		AllowedNextStages: req.AllowedNextStages,
		StageTasks:        req.StageTasks,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stage)
}

// DeleteStage deletes a stage when no lead occupies it.
// (DELETE /api/v1/stages/:uid)
func (s *Server) DeleteStage(c echo.Context) error {
	if err := s.Service.DeleteStage(c.Request().Context(), c.Param("uid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type reorderStagesRequest struct {
	StageOrders []services.StageOrder `json:"stage_orders" validate:"required,min=1,dive"`
}

// ReorderStages applies a batch of stage position updates.
// (POST /api/v1/stages/reorder)
func (s *Server) ReorderStages(c echo.Context) error {
	var req reorderStagesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := s.Service.ReorderStages(c.Request().Context(), req.StageOrders); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Stages reordered"})
}
