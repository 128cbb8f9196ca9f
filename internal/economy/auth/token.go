// Package auth verifies the signed bearer tokens that identify students and
// teachers to the economy service.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/requestctx"
)

// Env var names for token verification configuration.
const (
	EnvAuthIssuer    = "EDUTOWN_AUTH_ISSUER"
	EnvAuthAudience  = "EDUTOWN_AUTH_AUDIENCE"
	EnvAuthPublicKey = "EDUTOWN_AUTH_PUBLIC_KEY"
)

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"EDUTOWN_AUTH_ISSUER"`
	Audience  string `env:"EDUTOWN_AUTH_AUDIENCE"`
	PublicKey string `env:"EDUTOWN_AUTH_PUBLIC_KEY"`
}

// Config defines how bearer tokens are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SchoolID  string `json:"school_id"`
	TownClass string `json:"town_class"`
}

// LoadConfigFromEnv reads token verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw verifierEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse auth env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("EDUTOWN_AUTH_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("EDUTOWN_AUTH_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("EDUTOWN_AUTH_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode auth public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("auth public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// VerifyToken verifies a bearer token and resolves the acting identity.
func VerifyToken(token string, cfg Config) (requestctx.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return requestctx.Identity{}, errors.New("token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return requestctx.Identity{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return requestctx.Identity{}, apperrors.WithMetadata(
			apperrors.CodeUnauthenticated,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return requestctx.Identity{}, apperrors.WithMetadata(
			apperrors.CodeUnauthenticated,
			"token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token exp is required")
	}

	now := cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token not active yet")
	}

	userID := strings.TrimSpace(parsed.Subject)
	if userID == "" {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token sub is required")
	}
	schoolID := strings.TrimSpace(parsed.SchoolID)
	if schoolID == "" {
		return requestctx.Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "token school is required")
	}
	role := requestctx.Role(strings.TrimSpace(parsed.Role))
	switch role {
	case requestctx.RoleStudent, requestctx.RoleTeacher:
	default:
		return requestctx.Identity{}, apperrors.WithMetadata(
			apperrors.CodeUnauthenticated,
			"token role is invalid",
			map[string]string{"Field": "role"},
		)
	}

	return requestctx.Identity{
		UserID:    userID,
		Role:      role,
		SchoolID:  schoolID,
		TownClass: strings.TrimSpace(parsed.TownClass),
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeUnauthenticated, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeUnauthenticated, "token alg is invalid")
	}
	return apperrors.New(apperrors.CodeUnauthenticated, "token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
