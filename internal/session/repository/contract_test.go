package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/session/domain"
)

// testClock is a settable time source shared by a repository and its test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// contractUsers must exist before the contract runs against a store with foreign keys.
var contractUsers = []string{"u1", "u2", "u3"}

func newSession(clock *testClock, userID string) *domain.Session {
	return &domain.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		RefreshTokenHash: "h-" + uuid.NewString(),
		Role:             role.Vendor,
		StoreID:          "s1",
		ExpiresAt:        clock.Now().Add(24 * time.Hour),
		IPAddress:        "10.0.0.1",
		UserAgent:        "test",
	}
}

// runContract exercises the Repository semantics every implementation must share.
func runContract(t *testing.T, newRepo func(t *testing.T, clock *testClock) Repository) {
	ctx := context.Background()

	t.Run("create and find active by hash", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		s := newSession(clock, "u1")
		evicted, err := repo.Create(ctx, s, 5)
		require.NoError(t, err)
		assert.Empty(t, evicted)

		got, err := repo.FindActiveByHash(ctx, s.RefreshTokenHash)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, role.Vendor, got.Role)
		assert.Equal(t, "s1", got.StoreID)

		missing, err := repo.FindActiveByHash(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("find active excludes expired and revoked", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		expiring := newSession(clock, "u1")
		expiring.ExpiresAt = clock.Now().Add(time.Minute)
		revoked := newSession(clock, "u1")
		_, err := repo.Create(ctx, expiring, 5)
		require.NoError(t, err)
		_, err = repo.Create(ctx, revoked, 5)
		require.NoError(t, err)
		require.NoError(t, repo.Revoke(ctx, revoked.ID, domain.ReasonLogout))
		clock.Advance(2 * time.Minute)

		for _, h := range []string{expiring.RefreshTokenHash, revoked.RefreshTokenHash} {
			got, err := repo.FindActiveByHash(ctx, h)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("max active sessions evicts oldest", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		var ids []string
		for i := 0; i < 3; i++ {
			s := newSession(clock, "u2")
			_, err := repo.Create(ctx, s, 3)
			require.NoError(t, err)
			ids = append(ids, s.ID)
			clock.Advance(time.Second)
		}
		fourth := newSession(clock, "u2")
		evicted, err := repo.Create(ctx, fourth, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[0]}, evicted)

		active, err := repo.ListActiveForUser(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, ids[1], active[0].ID)
		assert.Equal(t, fourth.ID, active[2].ID)

		old, err := repo.GetByID(ctx, ids[0])
		require.NoError(t, err)
		assert.True(t, old.IsRevoked)
		assert.Equal(t, domain.ReasonEvicted, old.RevokeReason)
	})

	t.Run("concurrent creates never exceed limit", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		const limit = 5
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Create(ctx, newSession(clock, "u3"), limit)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		active, err := repo.ListActiveForUser(ctx, "u3")
		require.NoError(t, err)
		assert.Len(t, active, limit)
	})

	t.Run("rotate is compare and set", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		s := newSession(clock, "u1")
		_, err := repo.Create(ctx, s, 5)
		require.NoError(t, err)

		newExp := clock.Now().Add(48 * time.Hour)
		rotated, err := repo.Rotate(ctx, s.ID, s.RefreshTokenHash, "h-next", newExp)
		require.NoError(t, err)
		assert.Equal(t, s.ID, rotated.ID)
		assert.Equal(t, "h-next", rotated.RefreshTokenHash)
		assert.True(t, rotated.ExpiresAt.Equal(newExp))

		_, err = repo.Rotate(ctx, s.ID, s.RefreshTokenHash, "h-other", newExp)
		assert.ErrorIs(t, err, ErrRotateConflict)

		old, err := repo.FindActiveByHash(ctx, s.RefreshTokenHash)
		require.NoError(t, err)
		assert.Nil(t, old, "rotated-away hash must not resolve to an active session")

		owner, err := repo.FindByHash(ctx, s.RefreshTokenHash)
		require.NoError(t, err)
		require.NotNil(t, owner)
		assert.Equal(t, s.ID, owner.ID)
		assert.Equal(t, "h-next", owner.RefreshTokenHash)
	})

	t.Run("concurrent rotations have one winner", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		s := newSession(clock, "u1")
		_, err := repo.Create(ctx, s, 5)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Rotate(ctx, s.ID, s.RefreshTokenHash, fmt.Sprintf("h-race-%d", i), clock.Now().Add(time.Hour))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrRotateConflict):
					conflicts++
				default:
					t.Errorf("Rotate: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("rotate refuses revoked or expired session", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		revoked := newSession(clock, "u1")
		expiring := newSession(clock, "u1")
		expiring.ExpiresAt = clock.Now().Add(time.Minute)
		_, err := repo.Create(ctx, revoked, 5)
		require.NoError(t, err)
		_, err = repo.Create(ctx, expiring, 5)
		require.NoError(t, err)
		require.NoError(t, repo.Revoke(ctx, revoked.ID, domain.ReasonLogout))
		clock.Advance(time.Hour)

		_, err = repo.Rotate(ctx, revoked.ID, revoked.RefreshTokenHash, "h-a", clock.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrRotateConflict)
		_, err = repo.Rotate(ctx, expiring.ID, expiring.RefreshTokenHash, "h-b", clock.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrRotateConflict)
	})

	t.Run("hashes are never reused", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		s := newSession(clock, "u1")
		_, err := repo.Create(ctx, s, 5)
		require.NoError(t, err)
		require.NoError(t, repo.Revoke(ctx, s.ID, domain.ReasonLogout))

		dup := newSession(clock, "u2")
		dup.RefreshTokenHash = s.RefreshTokenHash
		_, err = repo.Create(ctx, dup, 5)
		assert.ErrorIs(t, err, ErrHashReused)

		other := newSession(clock, "u2")
		_, err = repo.Create(ctx, other, 5)
		require.NoError(t, err)
		_, err = repo.Rotate(ctx, other.ID, other.RefreshTokenHash, s.RefreshTokenHash, clock.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrHashReused)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		s := newSession(clock, "u1")
		_, err := repo.Create(ctx, s, 5)
		require.NoError(t, err)

		require.NoError(t, repo.Revoke(ctx, s.ID, domain.ReasonLogout))
		first, err := repo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		clock.Advance(time.Minute)
		require.NoError(t, repo.Revoke(ctx, s.ID, domain.ReasonSecurity))
		second, err := repo.GetByID(ctx, s.ID)
		require.NoError(t, err)

		assert.Equal(t, domain.ReasonLogout, second.RevokeReason)
		require.NotNil(t, second.RevokedAt)
		assert.True(t, first.RevokedAt.Equal(*second.RevokedAt))
		assert.NoError(t, repo.Revoke(ctx, "missing", domain.ReasonLogout))
	})

	t.Run("revoke all for user", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		for i := 0; i < 3; i++ {
			_, err := repo.Create(ctx, newSession(clock, "u1"), 5)
			require.NoError(t, err)
		}
		keep := newSession(clock, "u2")
		_, err := repo.Create(ctx, keep, 5)
		require.NoError(t, err)

		n, err := repo.RevokeAllForUser(ctx, "u1", domain.ReasonSecurity)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = repo.RevokeAllForUser(ctx, "u1", domain.ReasonSecurity)
		require.NoError(t, err)
		assert.Zero(t, n)

		active, err := repo.ListActiveForUser(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("delete expired", func(t *testing.T) {
		clock := newTestClock()
		repo := newRepo(t, clock)
		short := newSession(clock, "u1")
		short.ExpiresAt = clock.Now().Add(time.Hour)
		long := newSession(clock, "u1")
		_, err := repo.Create(ctx, short, 5)
		require.NoError(t, err)
		_, err = repo.Create(ctx, long, 5)
		require.NoError(t, err)

		n, err := repo.DeleteExpired(ctx, clock.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		gone, err := repo.GetByID(ctx, short.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
		kept, err := repo.GetByID(ctx, long.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}
