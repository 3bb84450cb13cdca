package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-crm/backend/pkg/models"
)

// PostgresConfigStore is the Postgres implementation of ConfigStore.
type PostgresConfigStore struct {
	pool *pgxpool.Pool
}

// NewPostgresConfigStore creates a new PostgresConfigStore.
func NewPostgresConfigStore(pool *pgxpool.Pool) *PostgresConfigStore {
	return &PostgresConfigStore{pool: pool}
}

// Insert stores a new config document.
func (s *PostgresConfigStore) Insert(ctx context.Context, config *models.WorkItemConfig) error {
	doc, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO configs (uid, updated_at, doc) VALUES ($1, $2, $3)`,
		config.UID, config.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("inserting config %s: %w", config.UID, err)
	}
	return nil
}

// Get retrieves a config by uid.
func (s *PostgresConfigStore) Get(ctx context.Context, uid string) (*models.WorkItemConfig, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM configs WHERE uid = $1", uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", uid, err)
	}
	return decodeConfig(doc)
}

// List returns all workflow configs.
func (s *PostgresConfigStore) List(ctx context.Context) ([]*models.WorkItemConfig, error) {
	var docs [][]byte
	if err := pgxscan.Select(ctx, s.pool, &docs, "SELECT doc FROM configs ORDER BY uid ASC"); err != nil {
		return nil, fmt.Errorf("listing configs: %w", err)
	}
	configs := make([]*models.WorkItemConfig, 0, len(docs))
	for _, doc := range docs {
		config, err := decodeConfig(doc)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, nil
}

// Update rewrites the config document.
func (s *PostgresConfigStore) Update(ctx context.Context, config *models.WorkItemConfig) error {
	doc, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE configs SET updated_at = $2, doc = $3 WHERE uid = $1`,
		config.UID, config.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("updating config %s: %w", config.UID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeConfig(doc []byte) (*models.WorkItemConfig, error) {
	var config models.WorkItemConfig
	if err := json.Unmarshal(doc, &config); err != nil {
		return nil, fmt.Errorf("decoding config document: %w", err)
	}
	return &config, nil
}
