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

// ChallengeStore implements MongoDB challenge storage
type ChallengeStore struct {
	collection *mongo.Collection
}

func (s *ChallengeStore) Create(ctx context.Context, challenge *domain.Challenge) error {
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}

	_, err := s.collection.InsertOne(ctx, challenge)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// Consume removes and returns the newest live challenge for (userID, kind)
// in a single FindOneAndDelete, so a challenge can never satisfy two
// ceremony completions. The expires_at filter makes expired-but-not-yet-
// reaped documents (the TTL monitor runs on a coarse interval) look absent.
func (s *ChallengeStore) Consume(ctx context.Context, userID domain.UserID, kind domain.ChallengeKind) (*domain.Challenge, error) {
	filter := bson.M{
		"user_id.id": userID.String(),
		"kind":       string(kind),
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var challenge domain.Challenge
	err := s.collection.FindOneAndDelete(ctx, filter, opts).Decode(&challenge)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return &challenge, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return nil
}
