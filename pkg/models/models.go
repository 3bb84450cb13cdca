// Package models defines the domain model for the lead workflow engine:
// the lead aggregate, pipeline stages, task templates and instances, and
// the typed custom-field system.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkItemStatus is the lifecycle status of a lead.
type WorkItemStatus string

const (
	StatusPending    WorkItemStatus = "pending"
	StatusInProgress WorkItemStatus = "in_progress"
	StatusCompleted  WorkItemStatus = "completed"
	StatusSkipped    WorkItemStatus = "skipped"
	StatusBlocked    WorkItemStatus = "blocked"
)

// IsValid reports whether s is a known work item status.
func (s WorkItemStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusSkipped, StatusBlocked:
		return true
	}
	return false
}

// TaskStatus is the lifecycle status of a task instance. Completed and
// skipped are terminal.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
	TaskBlocked    TaskStatus = "blocked"
)

// Well-known activity types. The type field is a free-form tag; these are
// the ones the engine itself writes.
const (
	ActivityCreated       = "CREATED"
	ActivityStageChange   = "STAGE_CHANGE"
	ActivityTaskCompleted = "TASK_COMPLETED"
	ActivityAssigned      = "ASSIGNED"
	ActivityNoteAdded     = "NOTE_ADDED"
)

// WorkStageTask is a task template attached to a stage. Instances copy the
// template at transition time, so later template edits only affect future
// instantiations.
type WorkStageTask struct {
	UID           string            `json:"uid"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Required      bool              `json:"required"`
	Order         int               `json:"order"`
	IsActive      bool              `json:"is_active"`
	TaskVariables []FieldDefinition `json:"task_variables,omitempty"`
}

// Instantiate creates a pending task instance from the template for a lead
// entering the given stage.
func (t WorkStageTask) Instantiate(stageUID string) WorkItemTask {
	return WorkItemTask{
		UID:           uuid.New().String(),
		Name:          t.Name,
		Description:   t.Description,
		TemplateID:    t.UID,
		Stage:         stageUID,
		Status:        TaskPending,
		Required:      t.Required,
		Order:         t.Order,
		IsActive:      t.IsActive,
		TaskVariables: t.TaskVariables,
		FieldValues:   []FieldValue{},
	}
}

// WorkItemTask is a per-lead task instance. Tasks are created only as a side
// effect of a stage transition and are never deleted, only transitioned.
type WorkItemTask struct {
	UID           string            `json:"uid"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	TemplateID    string            `json:"template_id"`
	Stage         string            `json:"stage"`
	Status        TaskStatus        `json:"status"`
	Required      bool              `json:"required"`
	Order         int               `json:"order"`
	IsActive      bool              `json:"is_active"`
	TaskVariables []FieldDefinition `json:"task_variables,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CompletedBy   string            `json:"completed_by,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	FieldValues   []FieldValue      `json:"field_values"`
}

// VariableDefinition returns the task variable definition for a field key,
// if the task captured one.
func (t *WorkItemTask) VariableDefinition(fieldKey string) (FieldDefinition, bool) {
	for _, def := range t.TaskVariables {
		if def.FieldKey == fieldKey {
			return def, true
		}
	}
	return FieldDefinition{}, false
}

// WorkStage is one position in the pipeline. allowed_next_stages forms a
// directed graph; cycles are legal (e.g. rejected back to new).
type WorkStage struct {
	UID               string          `json:"uid"`
	Config            string          `json:"config"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Color             string          `json:"color"`
	Description       string          `json:"description,omitempty"`
	Order             int             `json:"order"`
	IsActive          bool            `json:"is_active"`
	AllowedNextStages []string        `json:"allowed_next_stages"`
	StageTasks        []WorkStageTask `json:"stage_tasks"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AllowsTransitionTo reports whether the stage has an edge to target.
func (s *WorkStage) AllowsTransitionTo(target string) bool {
	for _, next := range s.AllowedNextStages {
		if next == target {
			return true
		}
	}
	return false
}

// Validate checks stage-internal invariants: template uids unique within the
// stage and every template's task variables internally consistent.
func (s *WorkStage) Validate() error {
	seen := make(map[string]bool, len(s.StageTasks))
	for _, task := range s.StageTasks {
		if task.UID != "" && seen[task.UID] {
			return &FieldError{Key: task.UID, Reason: "duplicate stage task uid"}
		}
		seen[task.UID] = true
		if err := ValidateDefinitions(task.TaskVariables); err != nil {
			return err
		}
	}
	return nil
}

// Activity is one immutable audit-log entry on a lead. Never edited or
// removed after append.
type Activity struct {
	Type         string         `json:"type"`
	Subject      string         `json:"subject"`
	Description  string         `json:"description,omitempty"`
	PerformedBy  string         `json:"performed_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
	ActivityData map[string]any `json:"activity_data,omitempty"`
}

// HistoryData records one stage-occupancy interval. ExitedAt is nil while
// the lead is in the stage; at most one entry is open at any time and it
// matches current_stage.
type HistoryData struct {
	Stage     string     `json:"stage"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// WorkItem is the lead aggregate. It exclusively owns its tasks, history and
// activities as embedded lists; stages and configs are referenced by uid
// only.
type WorkItem struct {
	UID            string         `json:"uid"`
	ItemID         string         `json:"item_id"`
	CurrentStage   string         `json:"current_stage"`
	Status         WorkItemStatus `json:"status"`
	Name           string         `json:"name"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Config         string         `json:"config"`
	ConfigValues   []FieldValue   `json:"config_values"`
	AssignedTo     []string       `json:"assigned_to"`
	Properties     map[string]any `json:"properties,omitempty"`
	LinkedEntities map[string]any `json:"linked_entities,omitempty"`
	History        []HistoryData  `json:"history"`
	Tasks          []WorkItemTask `json:"tasks"`
	Activities     []Activity     `json:"activities"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CreatedBy      string         `json:"created_by,omitempty"`
}

// CloseHistory sets exited_at on the open history entry for the current
// stage, if one exists.
func (w *WorkItem) CloseHistory(now time.Time) {
	for i := range w.History {
		if w.History[i].Stage == w.CurrentStage && w.History[i].ExitedAt == nil {
			w.History[i].ExitedAt = &now
		}
	}
}

// OpenHistory appends a new open history entry for the given stage.
func (w *WorkItem) OpenHistory(stage string, now time.Time) {
	w.History = append(w.History, HistoryData{Stage: stage, EnteredAt: now})
}

// FindTask returns a pointer into the task list for the given uid, so the
// caller can update the entry in place.
func (w *WorkItem) FindTask(uid string) *WorkItemTask {
	for i := range w.Tasks {
		if w.Tasks[i].UID == uid {
			return &w.Tasks[i]
		}
	}
	return nil
}

// IncompleteRequiredTasks returns every required task across the whole lead
// that is not completed. A lead accumulates tasks from every stage it has
// visited and none may block a transition.
func (w *WorkItem) IncompleteRequiredTasks() []WorkItemTask {
	var blocking []WorkItemTask
	for _, task := range w.Tasks {
		if task.Required && task.Status != TaskCompleted {
			blocking = append(blocking, task)
		}
	}
	return blocking
}

// AppendActivity appends an immutable audit record.
func (w *WorkItem) AppendActivity(a Activity) {
	w.Activities = append(w.Activities, a)
}

// WorkItemConfig is the named set of custom-field definitions attached to
// every lead that references it. Long-lived; mutated by editing variables,
// never deleted.
type WorkItemConfig struct {
	UID          string            `json:"uid"`
	WorkflowName string            `json:"workflow_name"`
	IsActive     bool              `json:"is_active"`
	Variables    []FieldDefinition `json:"variables"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// VariableDefinition returns the config variable definition for a field key.
func (c *WorkItemConfig) VariableDefinition(fieldKey string) (FieldDefinition, bool) {
	for _, def := range c.Variables {
		if def.FieldKey == fieldKey {
			return def, true
		}
	}
	return FieldDefinition{}, false
}

// FormatLeadID renders a human-readable lead id, e.g. LEAD-202608-00001.
func FormatLeadID(prefix, yearMonth string, seq int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, yearMonth, seq)
}
