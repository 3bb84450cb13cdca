package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

type createLeadRequest struct {
	UID            string              `json:"uid"`
	Name           string              `json:"name" validate:"required"`
	Email          string              `json:"email" validate:"omitempty,email"`
	Phone          string              `json:"phone"`
	CurrentStage   string              `json:"current_stage" validate:"required"`
	Status         string              `json:"status"`
	Config         string              `json:"config"`
	ConfigValues   []fieldValuePayload `json:"config_values" validate:"dive"`
	AssignedTo     []string            `json:"assigned_to"`
	Properties     map[string]any      `json:"properties"`
	LinkedEntities map[string]any      `json:"linked_entities"`
	CreatedBy      string              `json:"created_by"`
}

// CreateLead creates a new lead.
// (POST /api/v1/leads)
func (s *Server) CreateLead(c echo.Context) error {
	var req createLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := s.Service.CreateLead(c.Request().Context(), services.CreateLeadInput{
		UID:            req.UID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		CurrentStage:   req.CurrentStage,
		Status:         models.WorkItemStatus(req.Status),
		Config:         req.Config,
		ConfigValues:   toFieldValues(req.ConfigValues),
		AssignedTo:     req.AssignedTo,
		Properties:     req.Properties,
		LinkedEntities: req.LinkedEntities,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, lead)
}

type listLeadsResponse struct {
	Results []*models.WorkItem `json:"results"`
	Count   int64              `json:"count"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// ListLeads returns a page of leads.
// (GET /api/v1/leads)
func (s *Server) ListLeads(c echo.Context) error {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)

	leads, total, err := s.Service.ListLeads(c.Request().Context(), services.ListLeadsInput{
		Filter: repository.LeadFilter{
			Config:       c.QueryParam("config"),
			CurrentStage: c.QueryParam("current_stage"),
			Status:       models.WorkItemStatus(c.QueryParam("status")),
		},
		Limit:  limit,
		Offset: offset,
		SortBy: c.QueryParam("sort"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, listLeadsResponse{Results: leads, Count: total, Limit: limit, Offset: offset})
}

// GetLead returns one lead by uid.
// (GET /api/v1/leads/:uid)
func (s *Server) GetLead(c echo.Context) error {
	lead, err := s.Service.GetLead(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

type updateLeadRequest struct {
	Name           *string              `json:"name"`
	Email          *string              `json:"email" validate:"omitempty,email"`
	Phone          *string              `json:"phone"`
	Status         *string              `json:"status"`
	AssignedTo     *[]string            `json:"assigned_to"`
	Properties     map[string]any       `json:"properties"`
	LinkedEntities map[string]any       `json:"linked_entities"`
	ConfigValues   *[]fieldValuePayload `json:"config_values"`
}

// UpdateLead applies a partial update to a lead.
// (PATCH /api/v1/leads/:uid)
func (s *Server) UpdateLead(c echo.Context) error {
	var req updateLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	update := services.LeadUpdate{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		AssignedTo:     req.AssignedTo,
		Properties:     req.Properties,
		LinkedEntities: req.LinkedEntities,
	}
	if req.Status != nil {
		status := models.WorkItemStatus(*req.Status)
		update.Status = &status
	}
	if req.ConfigValues != nil {
		values := toFieldValues(*req.ConfigValues)
		update.ConfigValues = &values
	}

	lead, err := s.Service.UpdateLead(c.Request().Context(), c.Param("uid"), update)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// DeleteLead hard-deletes a lead.
// (DELETE /api/v1/leads/:uid)
func (s *Server) DeleteLead(c echo.Context) error {
	if err := s.Service.DeleteLead(c.Request().Context(), c.Param("uid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type transitionRequest struct {
	ToStage     string `json:"to_stage" validate:"required"`
	Comment     string `json:"comment"`
	PerformedBy string `json:"performed_by"`
}

// TransitionStage moves a lead to a new stage.
// (POST /api/v1/leads/:uid/transition)
func (s *Server) TransitionStage(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := s.Service.TransitionStage(c.Request().Context(), c.Param("uid"), req.ToStage, req.Comment, req.PerformedBy)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

type completeTaskRequest struct {
	FieldValues []fieldValuePayload `json:"field_values" validate:"dive"`
	Notes       string              `json:"notes"`
	CompletedBy string              `json:"completed_by"`
}

// CompleteTask completes one task on a lead.
// (POST /api/v1/leads/:uid/tasks/:task_uid/complete)
func (s *Server) CompleteTask(c echo.Context) error {
	var req completeTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lead, err := s.Service.CompleteTask(c.Request().Context(), c.Param("uid"), c.Param("task_uid"),
		toFieldValues(req.FieldValues), req.Notes, req.CompletedBy)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

type addActivityRequest struct {
	Type         string         `json:"type" validate:"required"`
	Subject      string         `json:"subject" validate:"required"`
	Description  string         `json:"description"`
	PerformedBy  string         `json:"performed_by"`
	ActivityData map[string]any `json:"activity_data"`
}

// AddActivity appends an audit record to a lead.
// (POST /api/v1/leads/:uid/activities)
func (s *Server) AddActivity(c echo.Context) error {
	var req addActivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	err := s.Service.AddActivity(c.Request().Context(), c.Param("uid"),
		req.Type, req.Subject, req.Description, req.PerformedBy, req.ActivityData)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Activity added"})
}

// Kanban returns the board projection grouped by stage.
// (GET /api/v1/leads/kanban)
func (s *Server) Kanban(c echo.Context) error {
	board, err := s.Service.GetKanbanBoard(c.Request().Context(), c.QueryParam("config"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, board)
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
