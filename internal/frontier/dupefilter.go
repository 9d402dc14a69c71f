package frontier

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DupeFilter is the shared set of request fingerprints already enqueued.
type DupeFilter struct {
	client redis.UniversalClient
	key    string
}

// NewDupeFilter creates a filter stored under key.
func NewDupeFilter(client redis.UniversalClient, key string) *DupeFilter {
	return &DupeFilter{client: client, key: key}
}

// Add inserts fp and reports whether it was absent. SADD makes the check and
// the insert a single atomic step, so two workers cannot both see "new".
func (f *DupeFilter) Add(ctx context.Context, fp string) (bool, error) {
	n, err := f.client.SAdd(ctx, f.key, fp).Result()
	if err != nil {
		return false, fmt.Errorf("dupefilter add: %w", err)
	}
	return n == 1, nil
}

// Contains reports whether fp has been seen.
func (f *DupeFilter) Contains(ctx context.Context, fp string) (bool, error) {
	ok, err := f.client.SIsMember(ctx, f.key, fp).Result()
	if err != nil {
		return false, fmt.Errorf("dupefilter contains: %w", err)
	}
	return ok, nil
}

// Len returns the number of fingerprints in the filter.
func (f *DupeFilter) Len(ctx context.Context) (int64, error) {
	n, err := f.client.SCard(ctx, f.key).Result()
	if err != nil {
		return 0, fmt.Errorf("dupefilter len: %w", err)
	}
	return n, nil
}

// Clear removes every fingerprint.
func (f *DupeFilter) Clear(ctx context.Context) error {
	if err := f.client.Del(ctx, f.key).Err(); err != nil {
		return fmt.Errorf("dupefilter clear: %w", err)
	}
	return nil
}
