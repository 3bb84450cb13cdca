package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-crm/backend/pkg/models"
)

// PostgresStageStore is the Postgres implementation of StageStore.
type PostgresStageStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStageStore creates a new PostgresStageStore.
func NewPostgresStageStore(pool *pgxpool.Pool) *PostgresStageStore {
	return &PostgresStageStore{pool: pool}
}

// Insert stores a new stage document.
func (s *PostgresStageStore) Insert(ctx context.Context, stage *models.WorkStage) error {
	doc, err := json.Marshal(stage)
	if err != nil {
		return fmt.Errorf("encoding stage: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO stages (uid, config, ord, updated_at, doc) VALUES ($1, $2, $3, $4, $5)`,
		stage.UID, stage.Config, stage.Order, stage.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("inserting stage %s: %w", stage.UID, err)
	}
	return nil
}

// Get retrieves a stage by uid.
func (s *PostgresStageStore) Get(ctx context.Context, uid string) (*models.WorkStage, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM stages WHERE uid = $1", uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading stage %s: %w", uid, err)
	}
	return decodeStage(doc)
}

// List returns stages by order ascending, insertion order breaking ties.
func (s *PostgresStageStore) List(ctx context.Context, config string) ([]*models.WorkStage, error) {
	builder := psql.Select("doc").From("stages").OrderBy("ord ASC", "seq ASC")
	if config != "" {
		builder = builder.Where(squirrel.Eq{"config": config})
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stage list query: %w", err)
	}
	var docs [][]byte
	if err := pgxscan.Select(ctx, s.pool, &docs, sql, args...); err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	stages := make([]*models.WorkStage, 0, len(docs))
	for _, doc := range docs {
		stage, err := decodeStage(doc)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// Update rewrites the stage document.
func (s *PostgresStageStore) Update(ctx context.Context, stage *models.WorkStage) error {
	doc, err := json.Marshal(stage)
	if err != nil {
		return fmt.Errorf("encoding stage: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE stages SET config = $2, ord = $3, updated_at = $4, doc = $5 WHERE uid = $1`,
		stage.UID, stage.Config, stage.Order, stage.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("updating stage %s: %w", stage.UID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a stage document. The in-use check belongs to the service
// layer; the store deletes unconditionally.
func (s *PostgresStageStore) Delete(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM stages WHERE uid = $1", uid)
	if err != nil {
		return fmt.Errorf("deleting stage %s: %w", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOrder updates one stage's position, keeping column and document in sync.
func (s *PostgresStageStore) SetOrder(ctx context.Context, uid string, order int, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stages
		 SET ord = $2,
		     updated_at = $3,
		     doc = jsonb_set(jsonb_set(doc, '{order}', to_jsonb($2::int)), '{updated_at}', to_jsonb($3::timestamptz))
		 WHERE uid = $1`,
		uid, order, now)
	if err != nil {
		return fmt.Errorf("reordering stage %s: %w", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeStage(doc []byte) (*models.WorkStage, error) {
	var stage models.WorkStage
	if err := json.Unmarshal(doc, &stage); err != nil {
		return nil, fmt.Errorf("decoding stage document: %w", err)
	}
	return &stage, nil
}
