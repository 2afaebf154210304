package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/domain"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage/memory"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

func TestChallengeCleanupRunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	userID := domain.NewUserID()

	expired := &domain.Challenge{
		ID:        "expired",
		UserID:    userID,
		Kind:      domain.ChallengeRegistration,
		Value:     "v1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &domain.Challenge{
		ID:        "live",
		UserID:    userID,
		Kind:      domain.ChallengeRegistration,
		Value:     "v2",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	if err := store.Challenges().Create(ctx, expired); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Challenges().Create(ctx, live); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	worker := NewChallengeCleanupWorker(config.ChallengeConfig{
		CleanupEnabled:         true,
		CleanupIntervalSeconds: 60,
	}, store, zap.NewNop())

	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	challenge, err := store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if challenge.ID != "live" {
		t.Errorf("Expected live challenge to survive, got %s", challenge.ID)
	}
	if _, err := store.Challenges().Consume(ctx, userID, domain.ChallengeRegistration); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected expired challenge to be gone, got %v", err)
	}
}

func TestChallengeCleanupStartStop(t *testing.T) {
	store := memory.NewStore()

	t.Run("Disabled", func(t *testing.T) {
		worker := NewChallengeCleanupWorker(config.ChallengeConfig{
			CleanupEnabled: false,
		}, store, zap.NewNop())

		worker.Start()
		worker.Stop()
	})

	t.Run("Enabled", func(t *testing.T) {
		worker := NewChallengeCleanupWorker(config.ChallengeConfig{
			CleanupEnabled:         true,
			CleanupIntervalSeconds: 1,
		}, store, zap.NewNop())

		worker.Start()
		worker.Stop()
	})

	t.Run("IntervalDefaulted", func(t *testing.T) {
		worker := NewChallengeCleanupWorker(config.ChallengeConfig{}, store, zap.NewNop())
		if worker.config.CleanupIntervalSeconds != 60 {
			t.Errorf("Expected default interval 60, got %d", worker.config.CleanupIntervalSeconds)
		}
	})
}
