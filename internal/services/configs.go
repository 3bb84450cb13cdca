package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/pkg/models"
)

// CreateConfigInput carries the caller-supplied fields for a new workflow
// config.
type CreateConfigInput struct {
	UID          string
	WorkflowName string
	IsActive     *bool
	Variables    []models.FieldDefinition
}

// CreateConfig creates a workflow config after validating its variable
// definitions.
func (s *LeadService) CreateConfig(ctx context.Context, in CreateConfigInput) (*models.WorkItemConfig, error) {
	if in.UID == "" {
		in.UID = uuid.New().String()
	}
	if in.WorkflowName == "" {
		in.WorkflowName = "Workflow " + in.UID
	}
	if err := models.ValidateDefinitions(in.Variables); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.now()
	config := &models.WorkItemConfig{
		UID:          in.UID,
		WorkflowName: in.WorkflowName,
		IsActive:     active,
		Variables:    orEmptyDefs(in.Variables),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.configs.Insert(ctx, config); err != nil {
		return nil, err
	}
	s.log.Info("config created", "uid", config.UID, "name", config.WorkflowName)
	return config, nil
}

// GetConfig returns a workflow config by uid.
func (s *LeadService) GetConfig(ctx context.Context, uid string) (*models.WorkItemConfig, error) {
	config, err := s.configs.Get(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("config %s not found", uid)
	}
	return config, err
}

// ListConfigs returns all workflow configs.
func (s *LeadService) ListConfigs(ctx context.Context) ([]*models.WorkItemConfig, error) {
	return s.configs.List(ctx)
}

// GetOrCreateConfig returns the config for uid, creating an empty one when
// it does not exist yet.
func (s *LeadService) GetOrCreateConfig(ctx context.Context, uid string) (*models.WorkItemConfig, error) {
	if uid == "" {
		uid = DefaultConfigUID
	}
	config, err := s.configs.Get(ctx, uid)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.CreateConfig(ctx, CreateConfigInput{UID: uid})
}

// ConfigUpdate is a partial update; nil fields are left untouched.
type ConfigUpdate struct {
	WorkflowName *string
	IsActive     *bool
	Variables    *[]models.FieldDefinition
}

// UpdateConfig applies a partial update after validating any replacement
// variable definitions. Leads created under the previous schema keep the
// values they captured.
func (s *LeadService) UpdateConfig(ctx context.Context, uid string, update ConfigUpdate) (*models.WorkItemConfig, error) {
	config, err := s.configs.Get(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("config %s not found", uid)
	}
	if err != nil {
		return nil, err
	}

	if update.Variables != nil {
		if err := models.ValidateDefinitions(*update.Variables); err != nil {
			return nil, &Error{Kind: KindValidation, Message: err.Error()}
		}
		config.Variables = orEmptyDefs(*update.Variables)
	}
	if update.WorkflowName != nil {
		config.WorkflowName = *update.WorkflowName
	}
	if update.IsActive != nil {
		config.IsActive = *update.IsActive
	}
	config.UpdatedAt = s.now()

	if err := s.configs.Update(ctx, config); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("config %s not found", uid)
		}
		return nil, err
	}
	return config, nil
}

func orEmptyDefs(defs []models.FieldDefinition) []models.FieldDefinition {
	if defs == nil {
		return []models.FieldDefinition{}
	}
	return defs
}
