package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/atelier-backend/pkg/config"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "https://idp.atelier.test", Leeway: 30 * time.Second, TokenTTL: 15 * time.Minute}
}

func TestSignAndVerify(t *testing.T) {
	cfg := testConfig()
	token, err := Sign(cfg, time.Now(), Identity{UID: "uid-1", EmailVerified: true})
	require.NoError(t, err)

	id, err := NewVerifier(cfg).Verify(token)
	require.NoError(t, err)
	require.Equal(t, "uid-1", id.UID)
	require.True(t, id.EmailVerified)
	require.NotEmpty(t, id.TokenID)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), id.ExpiresAt, 2*time.Second)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	cfg := testConfig()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   "from-sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	id, err := NewVerifier(cfg).Verify(token)
	require.NoError(t, err)
	require.Equal(t, "from-sub", id.UID)
	require.False(t, id.EmailVerified)
}

func TestVerifyRejects(t *testing.T) {
	cfg := testConfig()
	v := NewVerifier(cfg)

	expired, err := Sign(cfg, time.Now().Add(-time.Hour), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	foreignCfg := cfg
	foreignCfg.Issuer = "someone-else"
	foreign, err := Sign(foreignCfg, time.Now(), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	wrongKey := cfg
	wrongKey.Secret = "nope"
	forged, err := Sign(wrongKey, time.Now(), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": cfg.Issuer, "uid": "u"}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	_, err = v.Verify(noExpiry)
	require.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	_, err = NewVerifier(config.JWTConfig{Issuer: cfg.Issuer}).Verify(expired)
	require.ErrorIs(t, err, ErrNoKey)
}

func TestVerifyLeewayAndAudience(t *testing.T) {
	cfg := testConfig()
	justExpired, err := Sign(cfg, time.Now().Add(-cfg.TokenTTL-10*time.Second), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = NewVerifier(cfg).Verify(justExpired)
	require.NoError(t, err, "expiry within leeway must pass")

	withAud := cfg
	withAud.Audience = "atelier-api"
	token, err := Sign(cfg, time.Now(), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = NewVerifier(withAud).Verify(token)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)

	token, err = Sign(withAud, time.Now(), Identity{UID: "uid-1"})
	require.NoError(t, err)
	_, err = NewVerifier(withAud).Verify(token)
	require.NoError(t, err)
}

func TestSignValidatesInput(t *testing.T) {
	_, err := Sign(testConfig(), time.Now(), Identity{UID: "  "})
	require.ErrorIs(t, err, ErrMissingUID)

	_, err = Sign(config.JWTConfig{Issuer: "x"}, time.Now(), Identity{UID: "u"})
	require.ErrorIs(t, err, ErrNoKey)
}
