package service

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// TokenService mints RS256 session tokens and publishes the matching
// verification key set. Tokens carry iss, aud, sub, iat and exp; the kid
// header lets verifiers pick the right JWKS entry across key rotations.
type TokenService struct {
	cfg config.JWTConfig
	key *rsa.PrivateKey
}

// NewTokenService parses the configured signing key
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwt private key: %w", err)
	}

	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 3600
	}

	return &TokenService{cfg: cfg, key: key}, nil
}

// Mint signs a session token for the given subject
func (s *TokenService) Mint(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.cfg.TTLSeconds) * time.Second)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.cfg.KeyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// JWKS returns the public key set for offline token verification
func (s *TokenService) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       s.key.Public(),
				KeyID:     s.cfg.KeyID,
				Algorithm: "RS256",
				Use:       "sig",
			},
		},
	}
}

// PublicKey returns the verification key for in-process middleware
func (s *TokenService) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
