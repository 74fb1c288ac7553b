package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeguard/backend/internal/db"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/session/domain"
)

// PostgresRepository stores sessions in the sessions table and every hash ever issued in
// session_token_hashes.
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository returns a session repository backed by pool. now may be nil.
func NewPostgresRepository(pool *pgxpool.Pool, now func() time.Time) *PostgresRepository {
	if now == nil {
		now = time.Now
	}
	return &PostgresRepository{pool: pool, now: now}
}

const sessionColumns = `s.id, s.user_id, s.refresh_token_hash, s.role, COALESCE(s.store_id, ''), s.expires_at,
	s.ip_address, s.user_agent, s.is_revoked, s.revoked_at, s.revoke_reason, s.created_at, s.updated_at`

// Create inserts s after evicting the user's oldest active sessions beyond maxActive-1.
// Concurrent creates for one user serialize on a transaction-scoped advisory lock.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session, maxActive int) ([]string, error) {
	if maxActive < 1 {
		maxActive = 1
	}
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt

	var evicted []string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		evicted = evicted[:0]
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.UserID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id FROM sessions
			WHERE user_id = $1 AND NOT is_revoked AND expires_at > $2
			ORDER BY created_at ASC, id ASC`, s.UserID, now)
		if err != nil {
			return err
		}
		active, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		if over := len(active) - (maxActive - 1); over > 0 {
			evicted = append(evicted, active[:over]...)
			if _, err := tx.Exec(ctx, `
				UPDATE sessions SET is_revoked = true, revoked_at = $2, revoke_reason = $3, updated_at = $2
				WHERE id = ANY($1) AND NOT is_revoked`, evicted, now, string(domain.ReasonEvicted)); err != nil {
				return err
			}
		}

		var storeID *string
		if s.StoreID != "" {
			storeID = &s.StoreID
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, user_id, refresh_token_hash, role, store_id, expires_at,
				ip_address, user_agent, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
			s.ID, s.UserID, s.RefreshTokenHash, s.Role.String(), storeID, s.ExpiresAt,
			s.IPAddress, s.UserAgent, s.CreatedAt); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO session_token_hashes (hash, session_id, issued_at) VALUES ($1, $2, $3)`,
			s.RefreshTokenHash, s.ID, s.CreatedAt)
		return err
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return evicted, nil
}

// FindActiveByHash returns the active session whose current hash is hash, or nil.
func (r *PostgresRepository) FindActiveByHash(ctx context.Context, hash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions s
		WHERE s.refresh_token_hash = $1 AND NOT s.is_revoked AND s.expires_at > $2`, hash, r.now().UTC())
}

// FindByHash returns the session that was issued hash at any point, or nil.
func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions s
		JOIN session_token_hashes h ON h.session_id = s.id
		WHERE h.hash = $1`, hash)
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id)
}

// Rotate is a compare-and-set on (id, oldHash): the UPDATE matches zero rows when another
// rotation already consumed oldHash or the session ended.
func (r *PostgresRepository) Rotate(ctx context.Context, id, oldHash, newHash string, newExpiresAt time.Time) (*domain.Session, error) {
	now := r.now().UTC()
	var out *domain.Session
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE sessions s SET refresh_token_hash = $3, expires_at = $4, updated_at = $5
			WHERE s.id = $1 AND s.refresh_token_hash = $2 AND NOT s.is_revoked AND s.expires_at > $5
			RETURNING `+sessionColumns, id, oldHash, newHash, newExpiresAt, now)
		s, err := scanSession(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRotateConflict
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE session_token_hashes SET retired_at = $2 WHERE hash = $1`, oldHash, now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO session_token_hashes (hash, session_id, issued_at) VALUES ($1, $2, $3)`,
			newHash, id, now); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

// Revoke marks the session revoked. No-op when already revoked or missing.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, reason domain.RevokeReason) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_revoked = true, revoked_at = $2, revoke_reason = $3, updated_at = $2
		WHERE id = $1 AND NOT is_revoked`, id, r.now().UTC(), string(reason))
	return db.MapError(err)
}

// RevokeAllForUser revokes every non-revoked session of userID.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, reason domain.RevokeReason) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_revoked = true, revoked_at = $2, revoke_reason = $3, updated_at = $2
		WHERE user_id = $1 AND NOT is_revoked`, userID, r.now().UTC(), string(reason))
	if err != nil {
		return 0, db.MapError(err)
	}
	return int(tag.RowsAffected()), nil
}

// ListActiveForUser returns the user's active sessions, oldest first.
func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions s
		WHERE s.user_id = $1 AND NOT s.is_revoked AND s.expires_at > $2
		ORDER BY s.created_at ASC, s.id ASC`, userID, r.now().UTC())
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, db.MapError(err)
		}
		out = append(out, s)
	}
	return out, db.MapError(rows.Err())
}

// DeleteExpired removes sessions (and their hash history) that expired or were revoked before before.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE expires_at < $1 OR (is_revoked AND revoked_at < $1)`, before)
	if err != nil {
		return 0, db.MapError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, db.MapError(err)
	}
	return s, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s             domain.Session
		roleName, why string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &roleName, &s.StoreID, &s.ExpiresAt,
		&s.IPAddress, &s.UserAgent, &s.IsRevoked, &s.RevokedAt, &why, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Role, _ = role.Parse(roleName)
	s.RevokeReason = domain.RevokeReason(why)
	return &s, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, ErrRotateConflict) {
		return err
	}
	if c, ok := db.UniqueViolation(err); ok && (c == "sessions_refresh_token_hash_key" || c == "session_token_hashes_pkey") {
		return ErrHashReused
	}
	return db.MapError(err)
}
