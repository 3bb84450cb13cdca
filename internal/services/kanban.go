package services

import (
	"context"

	"lead-crm/backend/pkg/models"
)

// BoardColumn is one kanban column: a stage with the leads currently in it.
type BoardColumn struct {
	Stage *models.WorkStage  `json:"stage"`
	Leads []*models.WorkItem `json:"leads"`
	Count int                `json:"count"`
}

// GetKanbanBoard projects leads onto active stages ordered by position. The
// projection is a pure read; results are cached per config filter for a
// short TTL and dropped on any lead or stage write.
func (s *LeadService) GetKanbanBoard(ctx context.Context, config string) ([]BoardColumn, error) {
	if columns, ok := s.boards.Get(config); ok {
		return columns, nil
	}

	stages, err := s.stages.List(ctx, config)
	if err != nil {
		return nil, err
	}
	columns := make([]BoardColumn, 0, len(stages))
	for _, stage := range stages {
		if !stage.IsActive {
			continue
		}
		leads, err := s.leads.ListByStage(ctx, stage.UID, config)
		if err != nil {
			return nil, err
		}
		columns = append(columns, BoardColumn{Stage: stage, Leads: leads, Count: len(leads)})
	}

	s.boards.SetWithTTL(config, columns, 1, boardCacheTTL)
	return columns, nil
}

// invalidateBoards drops the cached board for one config plus the unfiltered
// board, which includes every config.
func (s *LeadService) invalidateBoards(config string) {
	s.boards.Del(config)
	s.boards.Del("")
}
