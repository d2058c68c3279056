package auth

import (
	"testing"
	"time"

	"boohpay/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "secret", AccessExpiry: time.Hour, Issuer: "boohpay"}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, "m1", "MERCHANT")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, "m1", claims.MerchantID)
	assert.Equal(t, "MERCHANT", claims.Role)

	other := testJWT()
	other.AccessSecret = "different"
	_, err = ParseAccessToken(other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testJWT()
	cfg.AccessExpiry = -time.Minute
	tok, err := GenerateAccessToken(cfg, "m1", "MERCHANT")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAPIKey(t *testing.T) {
	key, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	got, err := APIKeyPrefix(key)
	require.NoError(t, err)
	assert.Equal(t, prefix, got)
	assert.NoError(t, CheckAPIKey(hash, key))
	assert.ErrorIs(t, CheckAPIKey(hash, key+"x"), ErrInvalidAPIKey)

	_, err = APIKeyPrefix("sk_live_abc")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}
