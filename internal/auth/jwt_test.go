package auth

import (
	"testing"
	"time"

	"cadence/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "cadence"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateAccessToken(cfg, "u1", "u1@example.com", "USER")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, "cadence", claims.Issuer)
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()

	other := *cfg
	other.AccessSecret = "other-secret"
	forged, err := GenerateAccessToken(&other, "u1", "", "USER")
	require.NoError(t, err)

	expiredCfg := *cfg
	expiredCfg.AccessExpiry = -time.Minute
	expired, err := GenerateAccessToken(&expiredCfg, "u1", "", "USER")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := GenerateAccessToken(cfg, "", "", "USER")
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": forged,
		"expired":      expired,
		"alg none":     none,
		"no user id":   noUser,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(cfg, tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
