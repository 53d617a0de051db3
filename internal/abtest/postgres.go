package abtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// PostgresStore persists experiments in the ab_tests table so they survive
// process restarts. The full test document is stored as JSONB; status is
// duplicated into a column for the active-set query.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, t *Test) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling test %s: %w", t.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ab_tests (id, campaign_id, status, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET status = $3, data = $4, updated_at = NOW()
	`, t.ID, t.CampaignID, string(t.Status), doc)
	if err != nil {
		return domain.Transient(fmt.Errorf("saving test %s: %w", t.ID, err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Test, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM ab_tests WHERE id = $1
	`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Transient(err)
	}
	var t Test
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decoding test %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM ab_tests WHERE status = 'running' ORDER BY created_at
	`)
	if err != nil {
		return nil, domain.Transient(err)
	}
	defer rows.Close()

	var out []Test
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var t Test
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
