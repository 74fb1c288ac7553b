//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storeguard/backend/internal/db/dbtest"
	"storeguard/backend/internal/grant/domain"
)

func TestPostgresRepository_Assignments(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, role) VALUES
			('u-owner', 'owner@shop.test', 'store_owner'),
			('u-vendor', 'vendor@shop.test', 'vendor');
		INSERT INTO stores (id, name, owner_id) VALUES ('s1', 'Shop', 'u-owner');`)
	require.NoError(t, err)

	repo := NewPostgresRepository(pool)

	a, err := repo.GetAssignment(ctx, "u-owner", "s1")
	require.NoError(t, err)
	require.NotNil(t, a, "store owner without an assignment row resolves through stores.owner_id")
	require.Equal(t, domain.KindOwner, a.Kind)

	a, err = repo.GetAssignment(ctx, "u-vendor", "s1")
	require.NoError(t, err)
	require.Nil(t, a)

	require.NoError(t, repo.Upsert(ctx, &domain.Assignment{UserID: "u-vendor", StoreID: "s1", Kind: domain.KindVendor, Permissions: domain.Permissions{Read: true}}))
	a, err = repo.GetAssignment(ctx, "u-vendor", "s1")
	require.NoError(t, err)
	require.Equal(t, domain.KindVendor, a.Kind)
	require.True(t, a.Permissions.Read)
	require.False(t, a.Permissions.Write)

	require.NoError(t, repo.Remove(ctx, "u-vendor", "s1"))
	a, err = repo.GetAssignment(ctx, "u-vendor", "s1")
	require.NoError(t, err)
	require.Nil(t, a)
}
