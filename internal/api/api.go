// Package api contains the HTTP handlers for the lead CRM service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

// Server holds the dependencies for the API handlers.
type Server struct {
	Service *services.LeadService
}

// NewServer creates a new Server.
func NewServer(service *services.LeadService) *Server {
	return &Server{Service: service}
}

// RegisterRoutes mounts all lead CRM routes on the group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/leads", s.ListLeads)
	g.POST("/leads", s.CreateLead)
	g.GET("/leads/kanban", s.Kanban)
	g.GET("/leads/:uid", s.GetLead)
	g.PATCH("/leads/:uid", s.UpdateLead)
	g.DELETE("/leads/:uid", s.DeleteLead)
	g.POST("/leads/:uid/transition", s.TransitionStage)
	g.POST("/leads/:uid/tasks/:task_uid/complete", s.CompleteTask)
	g.POST("/leads/:uid/activities", s.AddActivity)

	g.GET("/stages", s.ListStages)
	g.POST("/stages", s.CreateStage)
	g.POST("/stages/reorder", s.ReorderStages)
	g.GET("/stages/:uid", s.GetStage)
	g.PATCH("/stages/:uid", s.UpdateStage)
	g.DELETE("/stages/:uid", s.DeleteStage)

	g.GET("/config", s.ListConfigs)
	g.POST("/config", s.CreateConfig)
	g.GET("/config/:uid", s.GetConfig)
	g.PATCH("/config/:uid", s.UpdateConfig)
}

// RequestValidator adapts go-playground/validator to echo's Validator
// interface.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates the request validator bound at server setup.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (v *RequestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status.
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "lead-crm",
		Version:   "1.0.0",
	})
}

// ProblemDetails is an RFC 7807 problem response, extended with the engine
// error kind and its structured payload.
type ProblemDetails struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Status        int      `json:"status"`
	Detail        string   `json:"detail,omitempty"`
	Kind          string   `json:"kind,omitempty"`
	FieldKey      string   `json:"field_key,omitempty"`
	FromStage     string   `json:"from_stage,omitempty"`
	ToStage       string   `json:"to_stage,omitempty"`
	BlockingTasks []string `json:"blocking_tasks,omitempty"`
	LeadCount     int64    `json:"lead_count,omitempty"`
}

// respondError maps an engine error onto an RFC 7807 response.
func respondError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	problem := ProblemDetails{
		Type:   "about:blank",
		Status: http.StatusInternalServerError,
		Title:  "Internal Server Error",
		Detail: err.Error(),
	}
	var engineErr *services.Error
	if errors.As(err, &engineErr) {
		problem.Kind = string(engineErr.Kind)
		problem.FieldKey = engineErr.FieldKey
		problem.FromStage = engineErr.FromStage
		problem.ToStage = engineErr.ToStage
		problem.BlockingTasks = engineErr.TaskNames
		problem.LeadCount = engineErr.LeadCount
		switch engineErr.Kind {
		case services.KindNotFound:
			problem.Status = http.StatusNotFound
			problem.Title = "Not Found"
		case services.KindValidation:
			problem.Status = http.StatusBadRequest
			problem.Title = "Validation Failed"
		case services.KindTransitionNotAllowed, services.KindRequiredTasksIncomplete,
			services.KindStageInUse, services.KindConflict:
			problem.Status = http.StatusConflict
			problem.Title = "Conflict"
		case services.KindInvalidState:
			problem.Status = http.StatusInternalServerError
			problem.Title = "Invalid State"
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(problem.Status, problem)
}

// fieldValuePayload is the wire form of a captured field value.
type fieldValuePayload struct {
	Variable      string `json:"variable" validate:"required"`
	FieldType     string `json:"field_type" validate:"required"`
	OriginalValue string `json:"original_value"`
	Value         any    `json:"value"`
}

func toFieldValues(payloads []fieldValuePayload) []models.FieldValue {
	values := make([]models.FieldValue, len(payloads))
	for i, p := range payloads {
		values[i] = models.FieldValue{
			Variable:      p.Variable,
			FieldType:     models.FieldType(p.FieldType),
			OriginalValue: p.OriginalValue,
			Value:         p.Value,
		}
	}
	return values
}
