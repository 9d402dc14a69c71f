// Package items classifies extracted guilds as new or seen and persists them.
package items

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

// Repository is the persistent record store.
type Repository interface {
	Upsert(ctx context.Context, rec domain.ServerRecord) error
}

// Store combines the seen-guild set with the record repository.
type Store struct {
	client redis.UniversalClient
	key    string
	repo   Repository
}

// NewStore creates a store tracking seen guild IDs under key.
func NewStore(client redis.UniversalClient, key string, repo Repository) *Store {
	return &Store{client: client, key: key, repo: repo}
}

// ClassifyAndRecord adds guildID to the seen set and reports whether it was new.
func (s *Store) ClassifyAndRecord(ctx context.Context, guildID string) (domain.Classification, error) {
	n, err := s.client.SAdd(ctx, s.key, guildID).Result()
	if err != nil {
		return "", fmt.Errorf("record guild id: %w", err)
	}
	if n == 1 {
		return domain.ClassificationNew, nil
	}
	return domain.ClassificationSeen, nil
}

// Upsert writes rec to the repository.
func (s *Store) Upsert(ctx context.Context, rec domain.ServerRecord) error {
	return s.repo.Upsert(ctx, rec)
}

// Record classifies rec and then upserts it regardless of the classification.
func (s *Store) Record(ctx context.Context, rec domain.ServerRecord) (domain.Classification, error) {
	class, err := s.ClassifyAndRecord(ctx, rec.GuildID)
	if err != nil {
		return "", err
	}
	if err := s.Upsert(ctx, rec); err != nil {
		return class, err
	}
	return class, nil
}

// Seen returns the number of distinct guild IDs in the current generation.
func (s *Store) Seen(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count seen guilds: %w", err)
	}
	return n, nil
}
