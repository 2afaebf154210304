package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

const googleIssuer = "https://accounts.google.com"

var (
	ErrInvalidIDToken    = errors.New("invalid google id token")
	ErrWrongHostedDomain = errors.New("wrong hosted domain")
)

// GoogleService verifies Google ID tokens and exchanges them for session
// tokens. Verification is delegated to go-oidc, which checks the
// signature against Google's published keys plus issuer, audience and
// expiry. The hosted-domain check is ours: when configured, only members
// of that Workspace domain may sign in.
type GoogleService struct {
	store    storage.Store
	tokens   *TokenService
	cfg      config.GoogleConfig
	logger   *zap.Logger
	verifier *oidc.IDTokenVerifier
}

// NewGoogleService creates a new GoogleService. It fetches Google's OIDC
// discovery document once at startup.
func NewGoogleService(ctx context.Context, cfg config.GoogleConfig, store storage.Store, tokens *TokenService, logger *zap.Logger) (*GoogleService, error) {
	if cfg.ServerClientID == "" {
		return nil, errors.New("google server client id is required")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create google oidc provider: %w", err)
	}

	return &GoogleService{
		store:    store,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.Named("google-service"),
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ServerClientID}),
	}, nil
}

// VerifyIDToken validates a raw Google ID token and mints a session token
// for the account it identifies, creating the account on first sign-in.
func (s *GoogleService) VerifyIDToken(ctx context.Context, rawToken string) (*domain.AuthResponse, error) {
	if rawToken == "" {
		return nil, ErrInvalidIDToken
	}

	idToken, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		s.logger.Warn("Google id token verification failed", zap.Error(err))
		return nil, ErrInvalidIDToken
	}

	var claims struct {
		Email        string `json:"email"`
		HostedDomain string `json:"hd"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ErrInvalidIDToken
	}

	if s.cfg.HostedDomain != "" && claims.HostedDomain != s.cfg.HostedDomain {
		s.logger.Warn("Google sign-in rejected for hosted domain",
			zap.String("hd", claims.HostedDomain),
		)
		return nil, ErrWrongHostedDomain
	}

	user, err := s.upsertUserByGoogleSub(ctx, idToken.Subject, claims.Email)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Mint(user.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("Google sign-in succeeded", zap.String("user_id", user.UUID.String()))

	return &domain.AuthResponse{Token: token, UserID: user.UUID.String()}, nil
}

func (s *GoogleService) upsertUserByGoogleSub(ctx context.Context, sub, email string) (*domain.User, error) {
	user, err := s.store.Users().GetByGoogleSub(ctx, sub)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user = &domain.User{
		UUID:      domain.NewUserID(),
		GoogleSub: &sub,
	}
	if email != "" {
		user.Email = &email
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Either a sub race or the email already belongs to a
			// password/passkey account; link by email in that case.
			if existing, gerr := s.store.Users().GetByGoogleSub(ctx, sub); gerr == nil {
				return existing, nil
			}
			if email != "" {
				existing, gerr := s.store.Users().GetByEmail(ctx, email)
				if gerr == nil {
					existing.GoogleSub = &sub
					if uerr := s.store.Users().Update(ctx, existing); uerr != nil {
						return nil, fmt.Errorf("failed to link google account: %w", uerr)
					}
					return existing, nil
				}
			}
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Created user from google sign-in", zap.String("user_id", user.UUID.String()))
	return user, nil
}
