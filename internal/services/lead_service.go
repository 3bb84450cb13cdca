// Package services implements the workflow engine: lead lifecycle, stage
// transitions, task completion, stage and config management, and the kanban
// projection. The engine is stateless between calls; all durable state lives
// in the stores and every compound update happens as one atomic document
// mutation.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"

	"lead-crm/backend/internal/logging"
	"lead-crm/backend/internal/repository"
	"lead-crm/backend/pkg/models"
)

// LeadIDPrefix is the default prefix for generated lead ids.
const LeadIDPrefix = "LEAD"

// DefaultConfigUID is the config leads fall back to when none is given.
const DefaultConfigUID = "default"

const boardCacheTTL = 30 * time.Second

// LeadService orchestrates all operations on leads, stages and configs.
type LeadService struct {
	leads   repository.LeadStore
	stages  repository.StageStore
	configs repository.ConfigStore
	log     logging.Logger
	boards  *ristretto.Cache[string, []BoardColumn]
	now     func() time.Time
}

// NewLeadService creates a LeadService over the given stores.
func NewLeadService(leads repository.LeadStore, stages repository.StageStore, configs repository.ConfigStore, log logging.Logger) (*LeadService, error) {
	boards, err := ristretto.NewCache(&ristretto.Config[string, []BoardColumn]{
		NumCounters: 1 << 10,
		MaxCost:     1 << 8,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LeadService{
		leads:   leads,
		stages:  stages,
		configs: configs,
		log:     log,
		boards:  boards,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateLeadInput carries the caller-supplied fields for a new lead.
type CreateLeadInput struct {
	UID            string
	Name           string
	Email          string
	Phone          string
	CurrentStage   string
	Status         models.WorkItemStatus
	Config         string
	ConfigValues   []models.FieldValue
	AssignedTo     []string
	Properties     map[string]any
	LinkedEntities map[string]any
	CreatedBy      string
}

// CreateLead creates a lead with a generated uid and month-scoped item id,
// an initial open history entry and a CREATED activity.
func (s *LeadService) CreateLead(ctx context.Context, in CreateLeadInput) (*models.WorkItem, error) {
	if in.Name == "" {
		return nil, validationf("name is required")
	}
	if in.CurrentStage == "" {
		return nil, validationf("current_stage is required")
	}
	if in.Status == "" {
		in.Status = models.StatusPending
	}
	if !in.Status.IsValid() {
		return nil, validationf("unknown status %q", in.Status)
	}
	if in.Config == "" {
		in.Config = DefaultConfigUID
	}
	if err := s.validateConfigValues(ctx, in.Config, in.ConfigValues); err != nil {
		return nil, err
	}

	uid := in.UID
	if uid == "" {
		uid = uuid.New().String()
	}
	itemID, err := s.NextLeadID(ctx, LeadIDPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	lead := &models.WorkItem{
		UID:            uid,
		ItemID:         itemID,
		CurrentStage:   in.CurrentStage,
		Status:         in.Status,
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		Config:         in.Config,
		ConfigValues:   orEmptyValues(in.ConfigValues),
		AssignedTo:     in.AssignedTo,
		Properties:     in.Properties,
		LinkedEntities: in.LinkedEntities,
		History:        []models.HistoryData{{Stage: in.CurrentStage, EnteredAt: now}},
		Tasks:          []models.WorkItemTask{},
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      in.CreatedBy,
	}
	lead.AppendActivity(models.Activity{
		Type:        models.ActivityCreated,
		Subject:     "Lead created",
		PerformedBy: in.CreatedBy,
		CreatedAt:   now,
		CreatedBy:   in.CreatedBy,
	})

	if err := s.leads.Insert(ctx, lead); err != nil {
		return nil, err
	}
	s.invalidateBoards(lead.Config)
	s.log.Info("lead created", "uid", lead.UID, "item_id", lead.ItemID, "stage", lead.CurrentStage)
	return lead, nil
}

// NextLeadID returns the next id for the current calendar month, e.g.
// LEAD-202608-00001. The store counter hands each value out exactly once, so
// concurrent creations in the same month never collide.
func (s *LeadService) NextLeadID(ctx context.Context, prefix string) (string, error) {
	yearMonth := s.now().Format("200601")
	seq, err := s.leads.NextSequence(ctx, prefix+"-"+yearMonth)
	if err != nil {
		return "", err
	}
	return models.FormatLeadID(prefix, yearMonth, seq), nil
}

// GetLead returns a lead by uid.
func (s *LeadService) GetLead(ctx context.Context, uid string) (*models.WorkItem, error) {
	lead, err := s.leads.Get(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("lead %s not found", uid)
	}
	return lead, err
}

// ListLeadsInput narrows and pages a lead listing. SortBy uses the
// "-created_at" convention: a leading dash means descending.
type ListLeadsInput struct {
	Filter repository.LeadFilter
	Limit  int
	Offset int
	SortBy string
}

// ListLeads returns a page of leads plus the total count for the filter.
func (s *LeadService) ListLeads(ctx context.Context, in ListLeadsInput) ([]*models.WorkItem, int64, error) {
	if in.Limit <= 0 {
		in.Limit = 100
	}
	if in.SortBy == "" {
		in.SortBy = "-created_at"
	}
	field := strings.TrimPrefix(in.SortBy, "-")
	desc := strings.HasPrefix(in.SortBy, "-")
	return s.leads.List(ctx, in.Filter, in.Limit, in.Offset, field, desc)
}

// LeadUpdate is a partial update; nil fields are left untouched.
type LeadUpdate struct {
	Name           *string
	Email          *string
	Phone          *string
	Status         *models.WorkItemStatus
	AssignedTo     *[]string
	Properties     map[string]any
	LinkedEntities map[string]any
	ConfigValues   *[]models.FieldValue
}

// UpdateLead applies a partial update to a lead. Stage, history, tasks and
// activities are engine-owned and cannot be changed here.
func (s *LeadService) UpdateLead(ctx context.Context, uid string, update LeadUpdate) (*models.WorkItem, error) {
	if update.Status != nil && !update.Status.IsValid() {
		return nil, validationf("unknown status %q", *update.Status)
	}
	now := s.now()
	lead, err := s.leads.Mutate(ctx, uid, func(lead *models.WorkItem) error {
		if update.ConfigValues != nil {
			if err := s.validateConfigValues(ctx, lead.Config, *update.ConfigValues); err != nil {
				return err
			}
			lead.ConfigValues = orEmptyValues(*update.ConfigValues)
		}
		if update.Name != nil {
			lead.Name = *update.Name
		}
		if update.Email != nil {
			lead.Email = *update.Email
		}
		if update.Phone != nil {
			lead.Phone = *update.Phone
		}
		if update.Status != nil {
			lead.Status = *update.Status
		}
		if update.AssignedTo != nil {
			lead.AssignedTo = *update.AssignedTo
		}
		if update.Properties != nil {
			lead.Properties = update.Properties
		}
		if update.LinkedEntities != nil {
			lead.LinkedEntities = update.LinkedEntities
		}
		lead.UpdatedAt = now
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("lead %s not found", uid)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateBoards(lead.Config)
	return lead, nil
}

// DeleteLead hard-deletes a lead. Administrative escape hatch: it bypasses
// the engine and preserves no invariants.
func (s *LeadService) DeleteLead(ctx context.Context, uid string) error {
	err := s.leads.Delete(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf("lead %s not found", uid)
	}
	if err != nil {
		return err
	}
	s.boards.Clear()
	s.log.Info("lead deleted", "uid", uid)
	return nil
}

// validateConfigValues checks captured values against the config's variable
// definitions. The schema is open: values without a matching definition only
// get the structural check.
func (s *LeadService) validateConfigValues(ctx context.Context, configUID string, values []models.FieldValue) error {
	var cfg *models.WorkItemConfig
	if configUID != "" {
		found, err := s.configs.Get(ctx, configUID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		cfg = found
	}
	for _, fv := range values {
		if err := models.CheckFieldValue(fv); err != nil {
			return &Error{Kind: KindValidation, Message: err.Error(), FieldKey: fv.Variable}
		}
		if cfg != nil {
			if def, ok := cfg.VariableDefinition(fv.Variable); ok {
				if err := models.ValidateFieldValue(def, fv.Value); err != nil {
					return &Error{Kind: KindValidation, Message: err.Error(), FieldKey: fv.Variable}
				}
			}
		}
	}
	return nil
}

func orEmptyValues(values []models.FieldValue) []models.FieldValue {
	if values == nil {
		return []models.FieldValue{}
	}
	return values
}
