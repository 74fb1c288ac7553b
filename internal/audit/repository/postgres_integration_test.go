//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storeguard/backend/internal/audit/domain"
	"storeguard/backend/internal/db/dbtest"
)

func TestPostgresRepository_AppendAndList(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, outcome := range []domain.Outcome{domain.OutcomeAllowed, domain.OutcomeDenied, domain.OutcomeAllowed} {
		require.NoError(t, repo.Create(ctx, &domain.Entry{
			ID: string(rune('a' + i)), Operation: "findMany", Access: "read", ResourceKind: "products",
			UserID: "u1", Role: "vendor", StoreID: "s1", SessionID: "sess", Metadata: "{}",
			Outcome: outcome, CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		}))
	}

	bySession, err := repo.ListBySession(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, bySession, 3)
	require.Equal(t, "a", bySession[0].ID)
	require.Equal(t, domain.OutcomeDenied, bySession[1].Outcome)

	byStore, err := repo.ListByStore(ctx, "s1", 2, 0)
	require.NoError(t, err)
	require.Len(t, byStore, 2)
	require.Equal(t, "c", byStore[0].ID, "newest first")

	require.Error(t, repo.Create(ctx, &domain.Entry{ID: "bad", Outcome: "maybe", CreatedAt: base}), "outcome is constrained")
}
