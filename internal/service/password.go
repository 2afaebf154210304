package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// scrypt parameters. Interoperable with records written by earlier
// deployments, so changing them invalidates existing hashes.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 16
)

// PasswordService handles email/password registration and login. Hashes
// are scrypt with a per-user random salt, both stored base64 encoded.
type PasswordService struct {
	store  storage.Store
	tokens *TokenService
	logger *zap.Logger
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(store storage.Store, tokens *TokenService, logger *zap.Logger) *PasswordService {
	return &PasswordService{
		store:  store,
		tokens: tokens,
		logger: logger.Named("password-service"),
	}
}

// Register sets a password for the email's account, creating the account
// if needed. An account that already completed password registration
// cannot be re-registered.
func (s *PasswordService) Register(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	if email == "" || password == "" {
		return nil, storage.ErrInvalidInput
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		user = &domain.User{
			UUID:  domain.NewUserID(),
			Email: &email,
		}
		if err := s.store.Users().Create(ctx, user); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	} else if user.HasPassword() {
		return nil, ErrEmailTaken
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash, err := hashPassword(password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.store.Users().SetPassword(ctx, user.UUID,
		base64.StdEncoding.EncodeToString(hash),
		base64.StdEncoding.EncodeToString(salt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set password: %w", err)
	}

	token, err := s.tokens.Mint(user.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("Password registered", zap.String("user_id", user.UUID.String()))

	return &domain.AuthResponse{Token: token, UserID: user.UUID.String()}, nil
}

// Login verifies the email/password pair. Unknown emails, accounts
// without a password and wrong passwords all collapse into
// ErrInvalidCredentials so the response doesn't leak which it was.
func (s *PasswordService) Login(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}

	storedHash, err := base64.StdEncoding.DecodeString(*user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode password hash: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(*user.PasswordSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode password salt: %w", err)
	}

	hash, err := hashPassword(password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if subtle.ConstantTimeCompare(hash, storedHash) != 1 {
		s.logger.Warn("Password login failed", zap.String("user_id", user.UUID.String()))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Mint(user.UUID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	s.logger.Info("Password login succeeded", zap.String("user_id", user.UUID.String()))

	return &domain.AuthResponse{Token: token, UserID: user.UUID.String()}, nil
}

func hashPassword(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}
