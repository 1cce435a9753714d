package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/adclassify/internal/service/engineconfig"
)

// EngineConfigRepo implements engineconfig.Repository against PostgreSQL.
type EngineConfigRepo struct{ db *sql.DB }

// NewEngineConfigRepo creates a Postgres-backed engine config repository.
func NewEngineConfigRepo(db *sql.DB) *EngineConfigRepo { return &EngineConfigRepo{db: db} }

func (r *EngineConfigRepo) Get(ctx context.Context, clientID string) (*engineconfig.Record, error) {
	rec := &engineconfig.Record{}
	var doc string
	err := r.db.QueryRowContext(ctx, `
		SELECT client_id, version, document::text, updated_at
		FROM engine_configs
		WHERE client_id = $1
	`, clientID).Scan(&rec.ClientID, &rec.Version, &doc, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, engineconfig.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get engine config: %w", err)
	}
	rec.Document = []byte(doc)
	return rec, nil
}

func (r *EngineConfigRepo) CreateIfAbsent(ctx context.Context, clientID string, doc []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engine_configs (client_id, version, document)
		VALUES ($1, 1, $2::jsonb)
		ON CONFLICT DO NOTHING
	`, clientID, string(doc))
	if err != nil {
		return fmt.Errorf("create engine config: %w", err)
	}
	return nil
}

func (r *EngineConfigRepo) Save(ctx context.Context, clientID string, doc []byte) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO engine_configs (client_id, version, document)
		VALUES ($1, 1, $2::jsonb)
		ON CONFLICT (client_id) DO UPDATE
		SET document = EXCLUDED.document,
		    version = engine_configs.version + 1,
		    updated_at = NOW()
		RETURNING version
	`, clientID, string(doc)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("save engine config: %w", err)
	}
	return version, nil
}

func (r *EngineConfigRepo) ListClients(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT client_id FROM engine_configs
		WHERE active
		ORDER BY client_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
