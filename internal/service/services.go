package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// Services aggregates all application services
type Services struct {
	Token            *TokenService
	WebAuthn         *WebAuthnService
	Password         *PasswordService
	Google           *GoogleService
	ChallengeCleanup *ChallengeCleanupWorker
}

// NewServices creates a new Services instance. The token and WebAuthn
// services are required; Google sign-in is optional and stays nil when no
// server client ID is configured, which the handlers surface as 503.
func NewServices(ctx context.Context, store storage.Store, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	tokenSvc, err := NewTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	verifier, err := NewWebAuthnVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn verifier: %w", err)
	}

	var googleSvc *GoogleService
	if cfg.Google.ServerClientID != "" {
		googleSvc, err = NewGoogleService(ctx, cfg.Google, store, tokenSvc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create google service: %w", err)
		}
	} else {
		logger.Warn("Google sign-in disabled: no server client id configured")
	}

	return &Services{
		Token:            tokenSvc,
		WebAuthn:         NewWebAuthnService(store, cfg, tokenSvc, verifier, logger),
		Password:         NewPasswordService(store, tokenSvc, logger),
		Google:           googleSvc,
		ChallengeCleanup: NewChallengeCleanupWorker(cfg.Challenge, store, logger),
	}, nil
}

// Start starts background workers
func (s *Services) Start() {
	if s.ChallengeCleanup != nil {
		s.ChallengeCleanup.Start()
	}
}

// Stop gracefully stops background workers
func (s *Services) Stop() {
	if s.ChallengeCleanup != nil {
		s.ChallengeCleanup.Stop()
	}
}
