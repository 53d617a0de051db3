// Package postgres implements the repository interfaces on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adpilot/internal/domain"
)

// Businesses is the PostgreSQL business repository.
type Businesses struct {
	db *sql.DB
}

// NewBusinesses creates the repository on an open handle.
func NewBusinesses(db *sql.DB) *Businesses {
	return &Businesses{db: db}
}

const businessColumns = `id, owner_id, name, status, monthly_price, COALESCE(closure_reason, ''), created_at, updated_at`

func scanBusiness(row interface{ Scan(...interface{}) error }) (*domain.Business, error) {
	var b domain.Business
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Status, &b.MonthlyPrice,
		&b.ClosureReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Businesses) FindByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE id = $1
	`, id)
	b, err := scanBusiness(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("loading business %s: %w", id, err))
	}
	return b, nil
}

func (r *Businesses) FindByStatus(ctx context.Context, status domain.BusinessStatus) ([]domain.Business, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE status = $1 ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, domain.Transient(err)
	}
	defer rows.Close()
	return collectBusinesses(rows)
}

// FindActive returns active businesses with at least one metric row recorded
// since the given instant. Businesses with no recent data have nothing to
// evaluate and are skipped by the automation cycle.
func (r *Businesses) FindActive(ctx context.Context, withMetricsSince time.Time) ([]domain.Business, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+businessColumns+` FROM businesses b
		WHERE b.status = 'active'
		  AND EXISTS (
			SELECT 1 FROM campaign_metrics m
			JOIN campaigns c ON c.id = m.campaign_id
			WHERE c.business_id = b.id AND m.day >= $1
		  )
		ORDER BY b.created_at
	`, withMetricsSince)
	if err != nil {
		return nil, domain.Transient(err)
	}
	defer rows.Close()
	return collectBusinesses(rows)
}

func collectBusinesses(rows *sql.Rows) ([]domain.Business, error) {
	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Update applies a partial update; keys are column names. Unknown or empty
// field sets are rejected before touching the database.
func (r *Businesses) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	query, args, err := buildUpdate("businesses", id, fields)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Transient(fmt.Errorf("updating business %s: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Businesses) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM businesses WHERE owner_id = $1 AND status != 'closed'
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, domain.Transient(err)
	}
	return n, nil
}

func (r *Businesses) Insert(ctx context.Context, b *domain.Business) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO businesses (id, owner_id, name, status, monthly_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.OwnerID, b.Name, string(b.Status), b.MonthlyPrice, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return domain.Transient(fmt.Errorf("inserting business: %w", err))
	}
	return nil
}

// buildUpdate renders a partial UPDATE with a deterministic column order and
// an updated_at touch.
func buildUpdate(table string, id uuid.UUID, fields map[string]interface{}) (string, []interface{}, error) {
	if len(fields) == 0 {
		return "", nil, domain.NewValidationError("fields", "no fields to update")
	}

	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, fields[c])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return query, args, nil
}
