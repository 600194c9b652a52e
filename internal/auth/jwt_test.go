package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenService("top-secret")

	token, err := svc.Issue("ws_1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ws_1", claims.WorkspaceID)
	assert.Equal(t, "webhookd", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
}

func TestTokenService_NoExpiry(t *testing.T) {
	svc := NewTokenService("top-secret")

	token, err := svc.Issue("ws_1", 0)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("top-secret")

	claims := Claims{
		WorkspaceID: "ws_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("top-secret"))
	require.NoError(t, err)

	foreign, err := NewTokenService("other-secret").Issue("ws_1", time.Hour)
	require.NoError(t, err)

	noWorkspace, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("top-secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{WorkspaceID: "ws_1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"no workspace": noWorkspace,
		"alg none":     unsigned,
		"garbage":      "not.a.jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(token)
			assert.Error(t, err)
		})
	}

	_, err = svc.Issue("", time.Hour)
	assert.Error(t, err)
}
