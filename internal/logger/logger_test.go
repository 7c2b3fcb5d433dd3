package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"jwt_secret", "abc", "material_id", "m1", "Authorization", "Bearer x", "dangling"})
	assert.Equal(t, []interface{}{"jwt_secret", "[REDACTED]", "material_id", "m1", "Authorization", "[REDACTED]", "dangling"}, out)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("dev", "loud")
	require.Error(t, err)

	l, err := New("prod", "warn")
	require.NoError(t, err)
	l.With("service", "test").Info("hidden below warn")
}
