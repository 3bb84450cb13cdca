// Package repository persists leads, stages and configs as schemaless
// documents in Postgres: one jsonb document per row plus extracted columns
// for indexing. The engine only relies on the store for atomic
// single-document read-modify-write and query/sort/paginate.
package repository

import (
	"context"
	"errors"
	"time"

	"lead-crm/backend/pkg/models"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("not found")

// LeadFilter narrows lead queries. Zero-valued fields are ignored.
type LeadFilter struct {
	Config       string
	CurrentStage string
	Status       models.WorkItemStatus
}

// LeadStore stores lead documents.
type LeadStore interface {
	Insert(ctx context.Context, lead *models.WorkItem) error
	Get(ctx context.Context, uid string) (*models.WorkItem, error)
	// List returns a page of leads plus the total count for the filter.
	List(ctx context.Context, filter LeadFilter, limit, offset int, sortField string, desc bool) ([]*models.WorkItem, int64, error)
	Delete(ctx context.Context, uid string) error
	// Mutate runs fn against the lead document inside a single atomic
	// read-modify-write: every change fn makes becomes visible together or
	// not at all, and concurrent mutations of the same lead serialize.
	// An error from fn aborts without writing.
	Mutate(ctx context.Context, uid string, fn func(*models.WorkItem) error) (*models.WorkItem, error)
	CountByStage(ctx context.Context, stageUID string) (int64, error)
	ListByStage(ctx context.Context, stageUID, config string) ([]*models.WorkItem, error)
	// NextSequence atomically increments and returns the counter for key.
	// Used for month-scoped lead ids; never hands out the same value twice.
	NextSequence(ctx context.Context, key string) (int64, error)
}

// StageStore stores pipeline stage documents.
type StageStore interface {
	Insert(ctx context.Context, stage *models.WorkStage) error
	Get(ctx context.Context, uid string) (*models.WorkStage, error)
	// List returns stages ordered by order ascending (ties by insertion),
	// optionally filtered by config.
	List(ctx context.Context, config string) ([]*models.WorkStage, error)
	Update(ctx context.Context, stage *models.WorkStage) error
	Delete(ctx context.Context, uid string) error
	// SetOrder updates a single stage's position; reorder batches apply
	// entry by entry and are not atomic across entries.
	SetOrder(ctx context.Context, uid string, order int, now time.Time) error
}

// ConfigStore stores workflow config documents.
type ConfigStore interface {
	Insert(ctx context.Context, config *models.WorkItemConfig) error
	Get(ctx context.Context, uid string) (*models.WorkItemConfig, error)
	List(ctx context.Context) ([]*models.WorkItemConfig, error)
	Update(ctx context.Context, config *models.WorkItemConfig) error
}
