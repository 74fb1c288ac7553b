package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeguard/backend/internal/db"
	"storeguard/backend/internal/grant/domain"
)

// PostgresRepository reads store_assignments, falling back to stores.owner_id for owners
// that were never given an explicit assignment row.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an assignment repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetAssignment(ctx context.Context, userID, storeID string) (*domain.Assignment, error) {
	const q = `
		SELECT kind, can_read, can_write FROM store_assignments WHERE user_id = $1 AND store_id = $2
		UNION ALL
		SELECT 'owner', true, true FROM stores WHERE id = $2 AND owner_id = $1
		LIMIT 1`
	var (
		kind        string
		read, write bool
	)
	err := r.pool.QueryRow(ctx, q, userID, storeID).Scan(&kind, &read, &write)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError(err)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return &domain.Assignment{
		UserID:      userID,
		StoreID:     storeID,
		Kind:        k,
		Permissions: domain.Permissions{Read: read, Write: write},
	}, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, a *domain.Assignment) error {
	const q = `
		INSERT INTO store_assignments (user_id, store_id, kind, can_read, can_write)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, store_id) DO UPDATE
		SET kind = EXCLUDED.kind, can_read = EXCLUDED.can_read, can_write = EXCLUDED.can_write`
	_, err := r.pool.Exec(ctx, q, a.UserID, a.StoreID, string(a.Kind), a.Permissions.Read, a.Permissions.Write)
	return db.MapError(err)
}

func (r *PostgresRepository) Remove(ctx context.Context, userID, storeID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM store_assignments WHERE user_id = $1 AND store_id = $2`, userID, storeID)
	return db.MapError(err)
}
