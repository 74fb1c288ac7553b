package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeguard/backend/internal/db"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/user/domain"
)

// PostgresRepository stores users in the users and external_identities tables.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `id, email, name, role, status, COALESCE(password_hash, ''), created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user for email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

// GetByExternalIdentity returns the user linked to (issuer, subject), or nil if none is linked.
func (r *PostgresRepository) GetByExternalIdentity(ctx context.Context, issuer, subject string) (*domain.User, error) {
	return r.getOne(ctx, `
		SELECT u.id, u.email, u.name, u.role, u.status, COALESCE(u.password_hash, ''), u.created_at, u.updated_at
		FROM users u
		JOIN external_identities x ON x.user_id = u.id
		WHERE x.issuer = $1 AND x.subject = $2`, issuer, subject)
}

// Create inserts u. u must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	var hash *string
	if u.PasswordHash != "" {
		hash = &u.PasswordHash
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.Role.String(), string(u.Status), hash, u.CreatedAt, u.UpdatedAt)
	return db.MapError(err)
}

// LinkExternalIdentity records that (issuer, subject) signs in as id.UserID.
func (r *PostgresRepository) LinkExternalIdentity(ctx context.Context, id domain.ExternalIdentity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO external_identities (issuer, subject, user_id) VALUES ($1, $2, $3)
		ON CONFLICT (issuer, subject) DO NOTHING`, id.Issuer, id.Subject, id.UserID)
	return db.MapError(err)
}

// SetStatus enables or disables the account.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	return db.MapError(err)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		u              domain.User
		roleName, stat string
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Name, &roleName, &stat, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, db.MapError(err)
	}
	u.Role, _ = role.Parse(roleName)
	u.Status = domain.UserStatus(stat)
	return &u, nil
}
