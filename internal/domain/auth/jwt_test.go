package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docgate/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	caller := appctx.Caller{
		UserID:    "nurse@example.org",
		RoleUUID:  "d6b81831-4bb2-4712-bcaa-e522c456a270",
		GroupUUID: "449351b4-bd5c-4358-bba8-8b8d410819c2",
	}

	token, expires, err := svc.GenerateAccessToken(caller)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, caller, *got)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	other := NewJWTService(DefaultJWTConfig("other-secret"))

	foreign, _, err := other.GenerateAccessToken(appctx.Caller{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err, "wrong signing key")

	expiredCfg := DefaultJWTConfig("test-secret")
	expiredCfg.AccessTokenTTL = -time.Minute
	expired, _, err := NewJWTService(expiredCfg).GenerateAccessToken(appctx.Caller{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err, "expired")

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)

	_, _, err = svc.GenerateAccessToken(appctx.Caller{})
	assert.Error(t, err)
}
