package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Authentication("invalid_refresh"))
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.False(t, errors.Is(err, ErrAccessDenied))
	assert.Equal(t, KindAuthentication, KindOf(err))
}

func TestPersistence_KeepsClassifiedErrors(t *testing.T) {
	assert.Nil(t, Persistence(nil))

	denied := Denied()
	assert.Same(t, denied, Persistence(denied))

	raw := errors.New(`pq: relation "sessions" does not exist`)
	err := Persistence(raw)
	require.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, raw))
	assert.NotContains(t, SafeMessage(err), "sessions")
}

func TestSafeMessage_NeverLeaksCause(t *testing.T) {
	err := DeniedCause(errors.New("store s-2 owned by u-9"))
	assert.Equal(t, "forbidden", SafeMessage(err))
	assert.Equal(t, "internal error", SafeMessage(errors.New("boom")))
}

func TestGRPCStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{nil, codes.OK},
		{Authentication("invalid_token"), codes.Unauthenticated},
		{Denied(), codes.PermissionDenied},
		{Validation("cross_tenant_write", "tenant mismatch"), codes.InvalidArgument},
		{Concurrency("refresh_conflict"), codes.Aborted},
		{Persistence(errors.New("conn reset")), codes.Unavailable},
		{errors.New("other"), codes.Internal},
	}
	for _, tt := range tests {
		st := GRPCStatus(tt.err)
		assert.Equal(t, tt.want, st.Code(), "err=%v", tt.err)
	}
}
