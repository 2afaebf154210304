package storage

import (
	"context"
	"errors"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCounterRegression = errors.New("signature counter regression")
	ErrDatabase          = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByGoogleSub retrieves a user by Google subject identifier
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)

	// Update updates a user
	Update(ctx context.Context, user *domain.User) error

	// SetPassword sets the user's password hash and salt
	SetPassword(ctx context.Context, id domain.UserID, hash, salt string) error
}

// PasskeyStore defines the interface for WebAuthn credential storage
type PasskeyStore interface {
	// Upsert inserts the passkey, replacing any record with the same
	// credential ID
	Upsert(ctx context.Context, passkey *domain.Passkey) error

	// GetByCredentialID retrieves a passkey by its base64url credential ID
	GetByCredentialID(ctx context.Context, credentialID string) (*domain.Passkey, error)

	// GetAllByUser retrieves all passkeys registered by a user
	GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Passkey, error)

	// UpdateCounter advances the stored signature counter. The counter
	// only moves forward: a value not greater than the stored one fails
	// with ErrCounterRegression and leaves the record untouched.
	UpdateCounter(ctx context.Context, credentialID string, counter uint32) error
}

// ChallengeStore defines the interface for ceremony challenge storage
type ChallengeStore interface {
	// Create creates a new challenge
	Create(ctx context.Context, challenge *domain.Challenge) error

	// Consume atomically removes and returns the most recently issued
	// unexpired challenge matching (userID, kind). Authentication
	// challenges are looked up with a zero userID. Returns ErrNotFound
	// when no live challenge matches; expired challenges never match.
	Consume(ctx context.Context, userID domain.UserID, kind domain.ChallengeKind) (*domain.Challenge, error)

	// DeleteExpired deletes all expired challenges
	DeleteExpired(ctx context.Context) error
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Passkeys() PasskeyStore
	Challenges() ChallengeStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
