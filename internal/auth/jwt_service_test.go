package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "qrattend"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		LecturerID: "lecturer-1",
		SessionID:  "session-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "lecturer-1", claims.LecturerID)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "qrattend", claims.Issuer)
}

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	issuer, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return past },
	})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken(AccessTokenInput{LecturerID: "lecturer-1"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	issuer, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken(AccessTokenInput{LecturerID: "lecturer-1"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.Error(t, err)
}
