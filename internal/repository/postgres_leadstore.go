package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-crm/backend/pkg/models"
)

// leadSortColumns whitelists the sortable lead columns. Anything else falls
// back to created_at.
var leadSortColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"item_id":       "item_id",
	"current_stage": "current_stage",
	"status":        "status",
}

// PostgresLeadStore is the Postgres implementation of LeadStore.
type PostgresLeadStore struct {
	pool *pgxpool.Pool
}

// NewPostgresLeadStore creates a new PostgresLeadStore.
func NewPostgresLeadStore(pool *pgxpool.Pool) *PostgresLeadStore {
	return &PostgresLeadStore{pool: pool}
}

// Insert stores a new lead document.
func (s *PostgresLeadStore) Insert(ctx context.Context, lead *models.WorkItem) error {
	doc, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encoding lead: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (uid, item_id, current_stage, config, status, assigned_to, created_at, updated_at, doc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		lead.UID, lead.ItemID, lead.CurrentStage, lead.Config, lead.Status,
		assignedOrEmpty(lead.AssignedTo), lead.CreatedAt, lead.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("inserting lead %s: %w", lead.UID, err)
	}
	return nil
}

// Get retrieves a lead by uid.
func (s *PostgresLeadStore) Get(ctx context.Context, uid string) (*models.WorkItem, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM leads WHERE uid = $1", uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading lead %s: %w", uid, err)
	}
	return decodeLead(doc)
}

// List returns a page of leads matching the filter plus the total count.
func (s *PostgresLeadStore) List(ctx context.Context, filter LeadFilter, limit, offset int, sortField string, desc bool) ([]*models.WorkItem, int64, error) {
	where := squirrel.And{}
	if filter.Config != "" {
		where = append(where, squirrel.Eq{"config": filter.Config})
	}
	if filter.CurrentStage != "" {
		where = append(where, squirrel.Eq{"current_stage": filter.CurrentStage})
	}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"status": string(filter.Status)})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("leads").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	var total int64
	if err := pgxscan.Get(ctx, s.pool, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("counting leads: %w", err)
	}

	column, ok := leadSortColumns[sortField]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	listSQL, listArgs, err := psql.Select("doc").From("leads").Where(where).
		OrderBy(column + " " + direction).
		Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building list query: %w", err)
	}

	var docs [][]byte
	if err := pgxscan.Select(ctx, s.pool, &docs, listSQL, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("listing leads: %w", err)
	}
	leads, err := decodeLeads(docs)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// Delete hard-deletes a lead.
func (s *PostgresLeadStore) Delete(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM leads WHERE uid = $1", uid)
	if err != nil {
		return fmt.Errorf("deleting lead %s: %w", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Mutate applies fn to the lead document inside one transaction. The row is
// locked for the duration, so concurrent mutations of the same lead
// serialize and readers never observe a partially applied compound update.
func (s *PostgresLeadStore) Mutate(ctx context.Context, uid string, fn func(*models.WorkItem) error) (*models.WorkItem, error) {
	var updated *models.WorkItem
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx, "SELECT doc FROM leads WHERE uid = $1 FOR UPDATE", uid).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking lead %s: %w", uid, err)
		}
		lead, err := decodeLead(doc)
		if err != nil {
			return err
		}
		if err := fn(lead); err != nil {
			return err
		}
		newDoc, err := json.Marshal(lead)
		if err != nil {
			return fmt.Errorf("encoding lead: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE leads SET doc = $2, current_stage = $3, status = $4, assigned_to = $5, updated_at = $6 WHERE uid = $1`,
			uid, newDoc, lead.CurrentStage, lead.Status, assignedOrEmpty(lead.AssignedTo), lead.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating lead %s: %w", uid, err)
		}
		updated = lead
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CountByStage counts leads currently in the given stage.
func (s *PostgresLeadStore) CountByStage(ctx context.Context, stageUID string) (int64, error) {
	var count int64
	err := pgxscan.Get(ctx, s.pool, &count, "SELECT COUNT(*) FROM leads WHERE current_stage = $1", stageUID)
	if err != nil {
		return 0, fmt.Errorf("counting leads in stage %s: %w", stageUID, err)
	}
	return count, nil
}

// ListByStage returns all leads currently in a stage, optionally restricted
// to one config. Used by the kanban projection.
func (s *PostgresLeadStore) ListByStage(ctx context.Context, stageUID, config string) ([]*models.WorkItem, error) {
	builder := psql.Select("doc").From("leads").
		Where(squirrel.Eq{"current_stage": stageUID}).
		OrderBy("created_at ASC")
	if config != "" {
		builder = builder.Where(squirrel.Eq{"config": config})
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stage query: %w", err)
	}
	var docs [][]byte
	if err := pgxscan.Select(ctx, s.pool, &docs, sql, args...); err != nil {
		return nil, fmt.Errorf("listing leads in stage %s: %w", stageUID, err)
	}
	return decodeLeads(docs)
}

// NextSequence increments and returns the counter for key in one statement,
// so two concurrent callers can never see the same value.
func (s *PostgresLeadStore) NextSequence(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO lead_counters (counter_key, seq) VALUES ($1, 1)
		 ON CONFLICT (counter_key) DO UPDATE SET seq = lead_counters.seq + 1
		 RETURNING seq`, key).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advancing counter %s: %w", key, err)
	}
	return seq, nil
}

func decodeLead(doc []byte) (*models.WorkItem, error) {
	var lead models.WorkItem
	if err := json.Unmarshal(doc, &lead); err != nil {
		return nil, fmt.Errorf("decoding lead document: %w", err)
	}
	return &lead, nil
}

func decodeLeads(docs [][]byte) ([]*models.WorkItem, error) {
	leads := make([]*models.WorkItem, 0, len(docs))
	for _, doc := range docs {
		lead, err := decodeLead(doc)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

// assignedOrEmpty keeps the array column non-null for the GIN index.
func assignedOrEmpty(assigned []string) []string {
	if assigned == nil {
		return []string{}
	}
	return assigned
}
