package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"lead-crm/backend/internal/repository"
	"lead-crm/backend/pkg/models"
)

// In-memory stores backing the engine tests. They mirror the repository
// contracts: Mutate is an atomic read-modify-write under a lock, sequences
// never repeat, and reads hand out copies so tests cannot alias store state.

type memLeadStore struct {
	mu       sync.Mutex
	leads    map[string]*models.WorkItem
	order    []string
	counters map[string]int64
}

func newMemLeadStore() *memLeadStore {
	return &memLeadStore{
		leads:    make(map[string]*models.WorkItem),
		counters: make(map[string]int64),
	}
}

func cloneLead(lead *models.WorkItem) *models.WorkItem {
	raw, _ := json.Marshal(lead)
	var out models.WorkItem
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *memLeadStore) Insert(ctx context.Context, lead *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.UID] = cloneLead(lead)
	s.order = append(s.order, lead.UID)
	return nil
}

func (s *memLeadStore) Get(ctx context.Context, uid string) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneLead(lead), nil
}

func (s *memLeadStore) matches(lead *models.WorkItem, filter repository.LeadFilter) bool {
	if filter.Config != "" && lead.Config != filter.Config {
		return false
	}
	if filter.CurrentStage != "" && lead.CurrentStage != filter.CurrentStage {
		return false
	}
	if filter.Status != "" && lead.Status != filter.Status {
		return false
	}
	return true
}

func (s *memLeadStore) List(ctx context.Context, filter repository.LeadFilter, limit, offset int, sortField string, desc bool) ([]*models.WorkItem, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.WorkItem
	for _, uid := range s.order {
		if lead, ok := s.leads[uid]; ok && s.matches(lead, filter) {
			matched = append(matched, cloneLead(lead))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		var less bool
		switch sortField {
		case "item_id":
			less = matched[i].ItemID < matched[j].ItemID
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*models.WorkItem{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *memLeadStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[uid]; !ok {
		return repository.ErrNotFound
	}
	delete(s.leads, uid)
	return nil
}

func (s *memLeadStore) Mutate(ctx context.Context, uid string, fn func(*models.WorkItem) error) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.leads[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	working := cloneLead(stored)
	if err := fn(working); err != nil {
		return nil, err
	}
	s.leads[uid] = cloneLead(working)
	return working, nil
}

func (s *memLeadStore) CountByStage(ctx context.Context, stageUID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, lead := range s.leads {
		if lead.CurrentStage == stageUID {
			count++
		}
	}
	return count, nil
}

func (s *memLeadStore) ListByStage(ctx context.Context, stageUID, config string) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.WorkItem{}
	for _, uid := range s.order {
		lead, ok := s.leads[uid]
		if !ok || lead.CurrentStage != stageUID {
			continue
		}
		if config != "" && lead.Config != config {
			continue
		}
		out = append(out, cloneLead(lead))
	}
	return out, nil
}

func (s *memLeadStore) NextSequence(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

type memStageStore struct {
	mu     sync.Mutex
	stages map[string]*models.WorkStage
	order  []string
}

func newMemStageStore() *memStageStore {
	return &memStageStore{stages: make(map[string]*models.WorkStage)}
}

func cloneStage(stage *models.WorkStage) *models.WorkStage {
	raw, _ := json.Marshal(stage)
	var out models.WorkStage
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *memStageStore) Insert(ctx context.Context, stage *models.WorkStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage.UID] = cloneStage(stage)
	s.order = append(s.order, stage.UID)
	return nil
}

func (s *memStageStore) Get(ctx context.Context, uid string) (*models.WorkStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneStage(stage), nil
}

func (s *memStageStore) List(ctx context.Context, config string) ([]*models.WorkStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.WorkStage{}
	for _, uid := range s.order {
		stage, ok := s.stages[uid]
		if !ok {
			continue
		}
		if config != "" && stage.Config != config {
			continue
		}
		out = append(out, cloneStage(stage))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *memStageStore) Update(ctx context.Context, stage *models.WorkStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stages[stage.UID]; !ok {
		return repository.ErrNotFound
	}
	s.stages[stage.UID] = cloneStage(stage)
	return nil
}

func (s *memStageStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stages[uid]; !ok {
		return repository.ErrNotFound
	}
	delete(s.stages, uid)
	return nil
}

func (s *memStageStore) SetOrder(ctx context.Context, uid string, order int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage, ok := s.stages[uid]
	if !ok {
		return repository.ErrNotFound
	}
	stage.Order = order
	stage.UpdatedAt = now
	return nil
}

type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]*models.WorkItemConfig
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[string]*models.WorkItemConfig)}
}

func cloneConfig(config *models.WorkItemConfig) *models.WorkItemConfig {
	raw, _ := json.Marshal(config)
	var out models.WorkItemConfig
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *memConfigStore) Insert(ctx context.Context, config *models.WorkItemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[config.UID] = cloneConfig(config)
	return nil
}

func (s *memConfigStore) Get(ctx context.Context, uid string) (*models.WorkItemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config, ok := s.configs[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConfig(config), nil
}

func (s *memConfigStore) List(ctx context.Context) ([]*models.WorkItemConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.WorkItemConfig{}
	for _, config := range s.configs {
		out = append(out, cloneConfig(config))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *memConfigStore) Update(ctx context.Context, config *models.WorkItemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[config.UID]; !ok {
		return repository.ErrNotFound
	}
	s.configs[config.UID] = cloneConfig(config)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, keyvals ...any) {}
func (nopLogger) Info(msg string, keyvals ...any)  {}
func (nopLogger) Warn(msg string, keyvals ...any)  {}
func (nopLogger) Error(msg string, keyvals ...any) {}
