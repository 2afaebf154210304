package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

func getTestMongoURI() string {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	return uri
}

func skipIfNoMongo(t *testing.T) *Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := &config.MongoDBConfig{
		URI:      getTestMongoURI(),
		Database: "credential_manager_test",
		Timeout:  5,
	}

	store, err := NewStore(ctx, cfg)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
		return nil
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.database.Drop(ctx)
		_ = store.Close()
	})

	return store
}

func strPtr(s string) *string { return &s }

func TestNewStore(t *testing.T) {
	store := skipIfNoMongo(t)
	require.NotNil(t, store)
}

func TestStore_Ping(t *testing.T) {
	store := skipIfNoMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, store.Ping(ctx))
}

func TestUserStore_CRUD(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()

	user := &domain.User{
		UUID:  domain.NewUserID(),
		Email: strPtr("alice@example.com"),
	}
	require.NoError(t, store.Users().Create(ctx, user))

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := &domain.User{UUID: domain.NewUserID(), Email: strPtr("alice@example.com")}
		assert.ErrorIs(t, store.Users().Create(ctx, dup), storage.ErrAlreadyExists)
	})

	t.Run("GetByID", func(t *testing.T) {
		found, err := store.Users().GetByID(ctx, user.UUID)
		require.NoError(t, err)
		assert.Equal(t, user.UUID, found.UUID)
	})

	t.Run("GetByEmail", func(t *testing.T) {
		found, err := store.Users().GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.UUID, found.UUID)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		_, err := store.Users().GetByID(ctx, domain.NewUserID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SetPassword", func(t *testing.T) {
		require.NoError(t, store.Users().SetPassword(ctx, user.UUID, "hash", "salt"))

		found, err := store.Users().GetByID(ctx, user.UUID)
		require.NoError(t, err)
		assert.True(t, found.HasPassword())
	})

	t.Run("GetByGoogleSub", func(t *testing.T) {
		google := &domain.User{UUID: domain.NewUserID(), GoogleSub: strPtr("sub-1")}
		require.NoError(t, store.Users().Create(ctx, google))

		found, err := store.Users().GetByGoogleSub(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, google.UUID, found.UUID)
	})

	t.Run("Update", func(t *testing.T) {
		user.GoogleSub = strPtr("sub-2")
		require.NoError(t, store.Users().Update(ctx, user))

		found, err := store.Users().GetByGoogleSub(ctx, "sub-2")
		require.NoError(t, err)
		assert.Equal(t, user.UUID, found.UUID)
	})
}

func TestPasskeyStore_CRUD(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	userID := domain.NewUserID()

	passkey := &domain.Passkey{
		CredentialID: "cred-1",
		UserID:       userID,
		PublicKey:    "pubkey",
		Counter:      5,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Passkeys().Upsert(ctx, passkey))

	t.Run("GetByCredentialID", func(t *testing.T) {
		found, err := store.Passkeys().GetByCredentialID(ctx, "cred-1")
		require.NoError(t, err)
		assert.Equal(t, uint32(5), found.Counter)
		assert.Equal(t, userID, found.UserID)
	})

	t.Run("GetAllByUser", func(t *testing.T) {
		other := &domain.Passkey{CredentialID: "cred-2", UserID: domain.NewUserID(), CreatedAt: time.Now()}
		require.NoError(t, store.Passkeys().Upsert(ctx, other))

		passkeys, err := store.Passkeys().GetAllByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, passkeys, 1)
		assert.Equal(t, "cred-1", passkeys[0].CredentialID)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		passkey.Transports = []string{"internal"}
		require.NoError(t, store.Passkeys().Upsert(ctx, passkey))

		found, err := store.Passkeys().GetByCredentialID(ctx, "cred-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"internal"}, found.Transports)
	})

	t.Run("UpdateCounter", func(t *testing.T) {
		require.NoError(t, store.Passkeys().UpdateCounter(ctx, "cred-1", 6))

		found, err := store.Passkeys().GetByCredentialID(ctx, "cred-1")
		require.NoError(t, err)
		assert.Equal(t, uint32(6), found.Counter)
		assert.NotNil(t, found.LastUsed)
	})

	t.Run("UpdateCounterRegression", func(t *testing.T) {
		assert.ErrorIs(t, store.Passkeys().UpdateCounter(ctx, "cred-1", 6), storage.ErrCounterRegression)
		assert.ErrorIs(t, store.Passkeys().UpdateCounter(ctx, "cred-1", 3), storage.ErrCounterRegression)
	})

	t.Run("UpdateCounterNotFound", func(t *testing.T) {
		assert.ErrorIs(t, store.Passkeys().UpdateCounter(ctx, "missing", 10), storage.ErrNotFound)
	})
}

func TestChallengeStore_Consume(t *testing.T) {
	store := skipIfNoMongo(t)
	ctx := context.Background()
	userID := domain.NewUserID()

	newChallenge := func(id string, user domain.UserID, kind domain.ChallengeKind, expiresIn time.Duration, createdAt time.Time) *domain.Challenge {
		return &domain.Challenge{
			ID:        id,
			UserID:    user,
			Kind:      kind,
			Value:     "value-" + id,
			ExpiresAt: time.Now().Add(expiresIn),
			CreatedAt: createdAt,
		}
	}

	t.Run("ConsumeOnce", func(t *testing.T) {
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("c1", userID, domain.ChallengeRegistration, time.Minute, time.Now())))

		challenge, err := store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration)
		require.NoError(t, err)
		assert.Equal(t, "c1", challenge.ID)

		_, err = store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PrefersNewest", func(t *testing.T) {
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("old", userID, domain.ChallengeRegistration, time.Minute, time.Now().Add(-time.Minute))))
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("new", userID, domain.ChallengeRegistration, time.Minute, time.Now())))

		challenge, err := store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration)
		require.NoError(t, err)
		assert.Equal(t, "new", challenge.ID)

		// The superseded one is still there for a later consume
		challenge, err = store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration)
		require.NoError(t, err)
		assert.Equal(t, "old", challenge.ID)
	})

	t.Run("ExpiredUnconsumable", func(t *testing.T) {
		other := domain.NewUserID()
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("expired", other, domain.ChallengeRegistration, -time.Second, time.Now())))

		_, err := store.Challenges().Consume(ctx, other, domain.ChallengeRegistration)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("AnonymousScope", func(t *testing.T) {
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("anon", domain.UserID{}, domain.ChallengeAuthentication, time.Minute, time.Now())))

		_, err := store.Challenges().Consume(ctx, userID, domain.ChallengeAuthentication)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		challenge, err := store.Challenges().Consume(ctx, domain.UserID{}, domain.ChallengeAuthentication)
		require.NoError(t, err)
		assert.Equal(t, "anon", challenge.ID)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		other := domain.NewUserID()
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("stale", other, domain.ChallengeRegistration, -time.Second, time.Now())))
		require.NoError(t, store.Challenges().Create(ctx,
			newChallenge("live", other, domain.ChallengeRegistration, time.Minute, time.Now())))

		require.NoError(t, store.Challenges().DeleteExpired(ctx))

		challenge, err := store.Challenges().Consume(ctx, other, domain.ChallengeRegistration)
		require.NoError(t, err)
		assert.Equal(t, "live", challenge.ID)
	})
}
