package memory

import (
	"context"
	"sync"
	"time"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users      *UserStore
	passkeys   *PasskeyStore
	challenges *ChallengeStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users:      &UserStore{data: make(map[string]*domain.User)},
		passkeys:   &PasskeyStore{data: make(map[string]*domain.Passkey)},
		challenges: &ChallengeStore{},
	}
}

func (s *Store) Users() storage.UserStore           { return s.users }
func (s *Store) Passkeys() storage.PasskeyStore     { return s.passkeys }
func (s *Store) Challenges() storage.ChallengeStore { return s.challenges }
func (s *Store) Close() error                       { return nil }
func (s *Store) Ping(ctx context.Context) error     { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.UUID.String()]; exists {
		return storage.ErrAlreadyExists
	}
	for _, existing := range s.data {
		if user.Email != nil && existing.Email != nil && *existing.Email == *user.Email {
			return storage.ErrAlreadyExists
		}
		if user.GoogleSub != nil && existing.GoogleSub != nil && *existing.GoogleSub == *user.GoogleSub {
			return storage.ErrAlreadyExists
		}
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	s.data[user.UUID.String()] = user
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id.String()]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.Email != nil && *user.Email == email {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.GoogleSub != nil && *user.GoogleSub == sub {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.UUID.String()]; !exists {
		return storage.ErrNotFound
	}

	user.UpdatedAt = time.Now()
	s.data[user.UUID.String()] = user
	return nil
}

func (s *UserStore) SetPassword(ctx context.Context, id domain.UserID, hash, salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.data[id.String()]
	if !exists {
		return storage.ErrNotFound
	}

	user.PasswordHash = &hash
	user.PasswordSalt = &salt
	user.UpdatedAt = time.Now()
	return nil
}

// PasskeyStore implements in-memory passkey storage
type PasskeyStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Passkey
}

func (s *PasskeyStore) Upsert(ctx context.Context, passkey *domain.Passkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if passkey.CreatedAt.IsZero() {
		passkey.CreatedAt = time.Now()
	}
	s.data[passkey.CredentialID] = passkey
	return nil
}

func (s *PasskeyStore) GetByCredentialID(ctx context.Context, credentialID string) (*domain.Passkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	passkey, exists := s.data[credentialID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return passkey, nil
}

func (s *PasskeyStore) GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Passkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	passkeys := make([]*domain.Passkey, 0)
	for _, passkey := range s.data {
		if passkey.UserID == userID {
			passkeys = append(passkeys, passkey)
		}
	}
	return passkeys, nil
}

func (s *PasskeyStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	passkey, exists := s.data[credentialID]
	if !exists {
		return storage.ErrNotFound
	}
	if counter <= passkey.Counter {
		return storage.ErrCounterRegression
	}

	now := time.Now()
	passkey.Counter = counter
	passkey.LastUsed = &now
	return nil
}

// ChallengeStore implements in-memory challenge storage. Challenges are
// kept in issue order so Consume can prefer the most recent match.
type ChallengeStore struct {
	mu   sync.Mutex
	data []*domain.Challenge
}

func (s *ChallengeStore) Create(ctx context.Context, challenge *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	s.data = append(s.data, challenge)
	return nil
}

func (s *ChallengeStore) Consume(ctx context.Context, userID domain.UserID, kind domain.ChallengeKind) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.data) - 1; i >= 0; i-- {
		challenge := s.data[i]
		if challenge.Kind != kind || challenge.UserID != userID {
			continue
		}
		if challenge.IsExpired() {
			continue
		}
		s.data = append(s.data[:i], s.data[i+1:]...)
		return challenge, nil
	}
	return nil, storage.ErrNotFound
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.data[:0]
	for _, challenge := range s.data {
		if !challenge.IsExpired() {
			live = append(live, challenge)
		}
	}
	s.data = live
	return nil
}
