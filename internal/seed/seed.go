// Package seed inserts development sample data: users of every role, two stores and
// their assignments. Apply is idempotent: it skips everything if the dev owner exists.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	grantdomain "storeguard/backend/internal/grant/domain"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/security"
	userdomain "storeguard/backend/internal/user/domain"
)

const (
	DevPassword = "password123"

	OwnerEmail  = "owner@example.com"
	VendorEmail = "vendor@example.com"
	AdminEmail  = "platform@example.com"

	ownerID  = "dev-user-001"
	vendorID = "dev-user-002"
	adminID  = "dev-user-003"
	owner2ID = "dev-user-004"

	StoreID      = "dev-store-001"
	OtherStoreID = "dev-store-002"
)

// Users is the slice of the user repository seeding needs.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// Grants is the slice of the assignment repository seeding needs.
type Grants interface {
	Upsert(ctx context.Context, a *grantdomain.Assignment) error
}

// Stores creates store rows. A nil Stores skips them (the in-memory repositories have no
// store table).
type Stores interface {
	CreateStore(ctx context.Context, id, name, ownerID string) error
}

// Deps are the repositories Apply writes to.
type Deps struct {
	Users  Users
	Grants Grants
	Stores Stores
	Hasher *security.Hasher
	Logger zerolog.Logger
}

// Apply inserts the sample data. Returns false when it was already present.
func Apply(ctx context.Context, d Deps) (bool, error) {
	existing, err := d.Users.GetByEmail(ctx, OwnerEmail)
	if err != nil {
		return false, fmt.Errorf("seed check: %w", err)
	}
	if existing != nil {
		d.Logger.Info().Str("email", OwnerEmail).Msg("seed already applied; skipping")
		return false, nil
	}

	hash, err := d.Hasher.Hash([]byte(DevPassword))
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	users := []*userdomain.User{
		{ID: ownerID, Email: OwnerEmail, Name: "Dev Owner", Role: role.StoreOwner},
		{ID: vendorID, Email: VendorEmail, Name: "Dev Vendor", Role: role.Vendor},
		{ID: adminID, Email: AdminEmail, Name: "Platform Admin", Role: role.PlatformAdmin},
		{ID: owner2ID, Email: "other-owner@example.com", Name: "Other Owner", Role: role.StoreOwner},
	}
	for _, u := range users {
		u.Status = userdomain.UserStatusActive
		u.PasswordHash = hash
		u.CreatedAt, u.UpdatedAt = now, now
		if err := d.Users.Create(ctx, u); err != nil {
			return false, fmt.Errorf("create user %s: %w", u.Email, err)
		}
	}

	if d.Stores != nil {
		if err := d.Stores.CreateStore(ctx, StoreID, "Acme Dev", ownerID); err != nil {
			return false, fmt.Errorf("create store: %w", err)
		}
		if err := d.Stores.CreateStore(ctx, OtherStoreID, "Other Dev", owner2ID); err != nil {
			return false, fmt.Errorf("create store: %w", err)
		}
	}

	assignments := []*grantdomain.Assignment{
		{UserID: ownerID, StoreID: StoreID, Kind: grantdomain.KindOwner},
		{UserID: owner2ID, StoreID: OtherStoreID, Kind: grantdomain.KindOwner},
		{UserID: vendorID, StoreID: StoreID, Kind: grantdomain.KindVendor, Permissions: grantdomain.Permissions{Read: true}},
	}
	for _, a := range assignments {
		if err := d.Grants.Upsert(ctx, a); err != nil {
			return false, fmt.Errorf("assign %s to %s: %w", a.UserID, a.StoreID, err)
		}
	}

	d.Logger.Info().
		Str("owner", OwnerEmail).
		Str("vendor", VendorEmail).
		Str("platform_admin", AdminEmail).
		Str("store_id", StoreID).
		Msg("seed applied")
	return true, nil
}

// PostgresStores writes the stores table.
type PostgresStores struct {
	pool *pgxpool.Pool
}

// NewPostgresStores returns a Stores backed by pool.
func NewPostgresStores(pool *pgxpool.Pool) *PostgresStores {
	return &PostgresStores{pool: pool}
}

// CreateStore inserts the store, leaving an existing row untouched.
func (s *PostgresStores) CreateStore(ctx context.Context, id, name, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stores (id, name, owner_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, name, ownerID)
	return err
}
