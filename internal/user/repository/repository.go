package repository

import (
	"context"

	"storeguard/backend/internal/user/domain"
)

// Repository defines persistence for users. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByExternalIdentity(ctx context.Context, issuer, subject string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	LinkExternalIdentity(ctx context.Context, id domain.ExternalIdentity) error
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
}
