package services

import (
	"context"
	"errors"
	"strings"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/pkg/models"
)

// TransitionStage moves a lead along a pipeline edge. Preconditions are
// evaluated in order with first failure winning: lead exists, current stage
// resolves, target stage resolves, the edge exists, and every required task
// on the lead is completed. All checks and effects run inside one atomic
// document mutation, so a failed precondition writes nothing and a
// concurrent reader never sees the new stage without its tasks, history
// entry and activity.
func (s *LeadService) TransitionStage(ctx context.Context, leadUID, targetUID, comment, actor string) (*models.WorkItem, error) {
	now := s.now()
	lead, err := s.leads.Mutate(ctx, leadUID, func(lead *models.WorkItem) error {
		current, err := s.stages.Get(ctx, lead.CurrentStage)
		if errors.Is(err, repository.ErrNotFound) {
			return invalidStatef("lead %s references missing stage %s", leadUID, lead.CurrentStage)
		}
		if err != nil {
			return err
		}
		target, err := s.stages.Get(ctx, targetUID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundf("stage %s not found", targetUID)
		}
		if err != nil {
			return err
		}
		if !current.AllowsTransitionTo(targetUID) {
			return &Error{
				Kind:      KindTransitionNotAllowed,
				Message:   "transition from " + current.Name + " to " + target.Name + " not allowed",
				FromStage: current.Name,
				ToStage:   target.Name,
			}
		}
		if blocking := lead.IncompleteRequiredTasks(); len(blocking) > 0 {
			names := make([]string, len(blocking))
			for i, task := range blocking {
				names[i] = task.Name
			}
			return &Error{
				Kind:      KindRequiredTasksIncomplete,
				Message:   "required tasks not completed: " + strings.Join(names, ", "),
				TaskNames: names,
			}
		}

		lead.CloseHistory(now)
		lead.OpenHistory(targetUID, now)
		lead.CurrentStage = targetUID
		lead.Status = models.StatusInProgress
		lead.UpdatedAt = now
		for _, tmpl := range target.StageTasks {
			if !tmpl.IsActive {
				continue
			}
			lead.Tasks = append(lead.Tasks, tmpl.Instantiate(targetUID))
		}
		lead.AppendActivity(models.Activity{
			Type:        models.ActivityStageChange,
			Subject:     "Lead moved to " + target.Name,
			Description: comment,
			PerformedBy: actor,
			CreatedAt:   now,
			CreatedBy:   actor,
			ActivityData: map[string]any{
				"from_stage": current.Name,
				"to_stage":   target.Name,
				"comment":    comment,
			},
		})
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("lead %s not found", leadUID)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateBoards(lead.Config)
	s.log.Info("lead transitioned", "uid", leadUID, "to_stage", targetUID, "actor", actor)
	return lead, nil
}

// CompleteTask marks one task instance completed and records the captured
// field values. Field values are validated before any write; the update and
// its TASK_COMPLETED activity land atomically. Completing a task never
// triggers a transition.
func (s *LeadService) CompleteTask(ctx context.Context, leadUID, taskUID string, fieldValues []models.FieldValue, notes, actor string) (*models.WorkItem, error) {
	for _, fv := range fieldValues {
		if err := models.CheckFieldValue(fv); err != nil {
			return nil, &Error{Kind: KindValidation, Message: err.Error(), FieldKey: fv.Variable}
		}
	}

	now := s.now()
	lead, err := s.leads.Mutate(ctx, leadUID, func(lead *models.WorkItem) error {
		task := lead.FindTask(taskUID)
		if task == nil {
			return notFoundf("task %s not found on lead %s", taskUID, leadUID)
		}
		for _, fv := range fieldValues {
			if def, ok := task.VariableDefinition(fv.Variable); ok {
				if err := models.ValidateFieldValue(def, fv.Value); err != nil {
					return &Error{Kind: KindValidation, Message: err.Error(), FieldKey: fv.Variable}
				}
			}
		}
		task.Status = models.TaskCompleted
		task.CompletedAt = &now
		task.CompletedBy = actor
		task.Notes = notes
		task.FieldValues = orEmptyValues(fieldValues)
		lead.UpdatedAt = now
		lead.AppendActivity(models.Activity{
			Type:        models.ActivityTaskCompleted,
			Subject:     "Task completed",
			PerformedBy: actor,
			CreatedAt:   now,
			CreatedBy:   actor,
			ActivityData: map[string]any{
				"task_uid": taskUID,
				"notes":    notes,
			},
		})
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundf("lead %s not found", leadUID)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("task completed", "lead", leadUID, "task", taskUID, "actor", actor)
	return lead, nil
}

// AddActivity appends a caller-supplied audit record to a lead.
func (s *LeadService) AddActivity(ctx context.Context, leadUID, activityType, subject, description, actor string, data map[string]any) error {
	if activityType == "" {
		return validationf("activity type is required")
	}
	if subject == "" {
		return validationf("activity subject is required")
	}
	now := s.now()
	_, err := s.leads.Mutate(ctx, leadUID, func(lead *models.WorkItem) error {
		lead.AppendActivity(models.Activity{
			Type:         activityType,
			Subject:      subject,
			Description:  description,
			PerformedBy:  actor,
			CreatedAt:    now,
			CreatedBy:    actor,
			ActivityData: data,
		})
		lead.UpdatedAt = now
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundf("lead %s not found", leadUID)
	}
	return err
}
