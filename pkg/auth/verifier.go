package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	ErrNoKey      = errors.New("jwt secret is not configured")
	ErrMissingUID = errors.New("token carries no uid")
)

type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify checks signature, issuer, expiry (and audience when configured) and
// returns the identity the token asserts.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if len(v.key) == 0 {
		return Identity{}, ErrNoKey
	}
	claims := &idTokenClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return Identity{}, err
	}
	uid := strings.TrimSpace(claims.uid())
	if uid == "" {
		return Identity{}, ErrMissingUID
	}
	id := Identity{UID: uid, EmailVerified: claims.EmailVerified, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Sign issues a token the Verifier for cfg accepts. Production tokens come
// from the identity provider; this serves tests and local tooling.
func Sign(cfg config.JWTConfig, now time.Time, id Identity) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrNoKey
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case strings.TrimSpace(id.UID) == "":
		return "", ErrMissingUID
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if id.TokenID == "" {
		id.TokenID = uuid.NewString()
	}
	claims := idTokenClaims{
		UID:           id.UID,
		EmailVerified: id.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        id.TokenID,
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
