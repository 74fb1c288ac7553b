package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeguard/backend/internal/audit/domain"
	"storeguard/backend/internal/db"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit repository backed by the audit_logs table.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const entryColumns = `id, operation, access, resource_kind, record_id, user_id, role, store_id, session_id, metadata, outcome, created_at`

// Create appends e. e must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	const q = `INSERT INTO audit_logs (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, q,
		e.ID, e.Operation, e.Access, e.ResourceKind, e.RecordID, e.UserID, e.Role,
		e.StoreID, e.SessionID, e.Metadata, string(e.Outcome), e.CreatedAt,
	)
	return db.MapError(err)
}

func (r *PostgresRepository) ListByStore(ctx context.Context, storeID string, limit, offset int32) ([]*domain.Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM audit_logs WHERE store_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	return r.list(ctx, q, storeID, limit, offset)
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM audit_logs WHERE session_id = $1 ORDER BY created_at, id`
	return r.list(ctx, q, sessionID)
}

func (r *PostgresRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Entry, error) {
		var (
			e       domain.Entry
			outcome string
		)
		err := row.Scan(&e.ID, &e.Operation, &e.Access, &e.ResourceKind, &e.RecordID, &e.UserID,
			&e.Role, &e.StoreID, &e.SessionID, &e.Metadata, &outcome, &e.CreatedAt)
		e.Outcome = domain.Outcome(outcome)
		return &e, err
	})
	if err != nil {
		return nil, db.MapError(err)
	}
	return out, nil
}
