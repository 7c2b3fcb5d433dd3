package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Hour)
	in := models.Actor{ID: "org-1", Kind: models.ActorOrganization, Blocked: true}

	token, err := svc.GenerateJWT(in)
	require.NoError(t, err)

	out, err := svc.ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseRejectsBadTokens(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.GenerateJWT(models.Actor{ID: "b1", Kind: models.ActorBuyer})
	require.NoError(t, err)

	_, err = NewService("other", time.Hour).ParseJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewService("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.ParseJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "b1", "kind": "buyer"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ParseJWT(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noKind, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "b1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ParseJWT(noKind)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRejectsUnknownKind(t *testing.T) {
	_, err := NewService("secret", time.Hour).GenerateJWT(models.Actor{ID: "x", Kind: "superadmin"})
	assert.Error(t, err)
}
