package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/pkg/models"
)

const defaultStageColor = "#6B7280"

// CreateStageInput carries the caller-supplied fields for a new stage.
type CreateStageInput struct {
	UID               string
	Config            string
	Name              string
	Slug              string
	Color             string
	Description       string
	Order             int
	IsActive          *bool
	AllowedNextStages []string
	StageTasks        []models.WorkStageTask
}

// CreateStage creates a pipeline stage. Task template uids are filled in
// when missing. allowed_next_stages may reference stages that do not exist
// yet; dangling edges surface as NotFound at transition time.
func (s *LeadService) CreateStage(ctx context.Context, in CreateStageInput) (*models.WorkStage, error) {
	if in.Name == "" {
		return nil, validationf("name is required")
	}
	if in.UID == "" {
		in.UID = uuid.New().String()
	}
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	if in.Color == "" {
		in.Color = defaultStageColor
	}
	if in.Config == "" {
		in.Config = DefaultConfigUID
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	for i := range in.StageTasks {
		if in.StageTasks[i].UID == "" {
			in.StageTasks[i].UID = uuid.New().String()
		}
	}

	now := s.now()
	stage := &models.WorkStage{
		UID:               in.UID,
		Config:            in.Config,
		Name:              in.Name,
		Slug:              in.Slug,
		Color:             in.Color,
		Description:       in.Description,
		Order:             in.Order,
		IsActive:          active,
		AllowedNextStages: orEmptyStrings(in.AllowedNextStages),
		StageTasks:        orEmptyTasks(in.StageTasks),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := stage.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	if err := s.stages.Insert(ctx, stage); err != nil {
		return nil, err
	}
	s.boards.Clear()
	s.log.Info("stage created", "uid", stage.UID, "name", stage.Name, "config", stage.Config)
	return stage, nil
}

// GetStage returns a stage by uid.
func (s *LeadService) GetStage(ctx context.Context, uid string) (*models.WorkStage, error) {
	stage, err := s.stages.Get(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("stage %s not found", uid)
	}
	return stage, err
}

// ListStages returns stages ordered by position, optionally filtered by
// config.
func (s *LeadService) ListStages(ctx context.Context, config string) ([]*models.WorkStage, error) {
	return s.stages.List(ctx, config)
}

// StageUpdate is a partial update; nil fields are left untouched.
type StageUpdate struct {
	Name              *string
	Slug              *string
	Color             *string
	Description       *string
	Order             *int
	IsActive          *bool
	AllowedNextStages *[]string
	StageTasks        *[]models.WorkStageTask
}

// UpdateStage applies a partial update. Template edits only affect future
// instantiations; existing task instances keep their captured copies.
func (s *LeadService) UpdateStage(ctx context.Context, uid string, update StageUpdate) (*models.WorkStage, error) {
	stage, err := s.stages.Get(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("stage %s not found", uid)
	}
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		stage.Name = *update.Name
	}
	if update.Slug != nil {
		stage.Slug = *update.Slug
	}
	if update.Color != nil {
		stage.Color = *update.Color
	}
	if update.Description != nil {
		stage.Description = *update.Description
	}
	if update.Order != nil {
		stage.Order = *update.Order
	}
	if update.IsActive != nil {
		stage.IsActive = *update.IsActive
	}
	if update.AllowedNextStages != nil {
		stage.AllowedNextStages = orEmptyStrings(*update.AllowedNextStages)
	}
	if update.StageTasks != nil {
		tasks := *update.StageTasks
		for i := range tasks {
			if tasks[i].UID == "" {
				tasks[i].UID = uuid.New().String()
			}
		}
		stage.StageTasks = orEmptyTasks(tasks)
	}
	if err := stage.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	stage.UpdatedAt = s.now()

	if err := s.stages.Update(ctx, stage); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("stage %s not found", uid)
		}
		return nil, err
	}
	s.boards.Clear()
	return stage, nil
}

// DeleteStage removes a stage unless any lead currently occupies it.
// Deletion never cascades or reassigns leads.
func (s *LeadService) DeleteStage(ctx context.Context, uid string) error {
	count, err := s.leads.CountByStage(ctx, uid)
	if err != nil {
		return err
	}
	if count > 0 {
		return &Error{
			Kind:      KindStageInUse,
			Message:   fmt.Sprintf("cannot delete stage: %d leads are currently in this stage", count),
			LeadCount: count,
		}
	}
	err = s.stages.Delete(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf("stage %s not found", uid)
	}
	if err != nil {
		return err
	}
	s.boards.Clear()
	s.log.Info("stage deleted", "uid", uid)
	return nil
}

// StageOrder assigns a position to one stage in a reorder batch.
type StageOrder struct {
	UID   string `json:"uid"`
	Order int    `json:"order"`
}

// ReorderStages applies a batch of position updates. Entries apply
// independently; a failure partway leaves earlier entries in place.
func (s *LeadService) ReorderStages(ctx context.Context, orders []StageOrder) error {
	defer s.boards.Clear()
	now := s.now()
	for _, entry := range orders {
		err := s.stages.SetOrder(ctx, entry.UID, entry.Order, now)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundf("stage %s not found", entry.UID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func orEmptyStrings(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func orEmptyTasks(tasks []models.WorkStageTask) []models.WorkStageTask {
	if tasks == nil {
		return []models.WorkStageTask{}
	}
	return tasks
}
