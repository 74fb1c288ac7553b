package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Str("session_id", "s1").Msg("kept")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "storeguard", line["service"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := New(&bytes.Buffer{}, "chatty", false)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}
