package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
)

// PasskeyStore implements MongoDB passkey storage
type PasskeyStore struct {
	collection *mongo.Collection
}

func (s *PasskeyStore) Upsert(ctx context.Context, passkey *domain.Passkey) error {
	if passkey.CreatedAt.IsZero() {
		passkey.CreatedAt = time.Now()
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": passkey.CredentialID}, passkey, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert passkey: %w", err)
	}
	return nil
}

func (s *PasskeyStore) GetByCredentialID(ctx context.Context, credentialID string) (*domain.Passkey, error) {
	var passkey domain.Passkey
	err := s.collection.FindOne(ctx, bson.M{"_id": credentialID}).Decode(&passkey)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get passkey: %w", err)
	}
	return &passkey, nil
}

func (s *PasskeyStore) GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Passkey, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"user_id.id": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to get passkeys: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	passkeys := make([]*domain.Passkey, 0)
	if err := cursor.All(ctx, &passkeys); err != nil {
		return nil, fmt.Errorf("failed to decode passkeys: %w", err)
	}
	return passkeys, nil
}

// UpdateCounter advances the signature counter with a guarded update so
// concurrent assertions cannot move it backwards. The filter only matches
// when the stored counter is strictly below the new value; a matched-zero
// result is disambiguated into ErrNotFound or ErrCounterRegression.
func (s *PasskeyStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	filter := bson.M{
		"_id":     credentialID,
		"counter": bson.M{"$lt": counter},
	}
	update := bson.M{
		"$set": bson.M{
			"counter":   counter,
			"last_used": time.Now(),
		},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update counter: %w", err)
	}
	if result.MatchedCount == 0 {
		err := s.collection.FindOne(ctx, bson.M{"_id": credentialID}).Err()
		if err == mongo.ErrNoDocuments {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check passkey: %w", err)
		}
		return storage.ErrCounterRegression
	}
	return nil
}
