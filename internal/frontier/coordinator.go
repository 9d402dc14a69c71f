package frontier

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/guildcrawl/internal/coordination"
	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/logger"
)

// Coordinator performs the crawl-wide restart: wipe the dedup filter, the
// queue and the seen guild IDs, then seed fresh start requests.
type Coordinator struct {
	client  redis.UniversalClient
	keys    Keys
	lockCfg coordination.LockConfig
	log     logger.Logger
}

// NewCoordinator creates a restart coordinator for one spider's keys.
func NewCoordinator(client redis.UniversalClient, keys Keys, lockCfg coordination.LockConfig, log logger.Logger) *Coordinator {
	return &Coordinator{client: client, keys: keys, lockCfg: lockCfg, log: log}
}

// Restart clears all crawl state and enqueues seeds in a single MULTI/EXEC
// while holding the restart lock, so no worker can observe a half-cleared
// frontier. Seeds with equal fingerprints are collapsed. It returns the
// number of requests seeded.
func (c *Coordinator) Restart(ctx context.Context, seeds []*domain.Request) (int, error) {
	members, fps, err := c.prepareSeeds(seeds)
	if err != nil {
		return 0, err
	}

	lock := coordination.NewDistributedLock(c.client, c.keys.RestartLock, c.lockCfg)
	if lockErr := lock.Lock(ctx); lockErr != nil {
		return 0, fmt.Errorf("acquire restart lock: %w", lockErr)
	}
	defer func() {
		if unlockErr := lock.Unlock(context.WithoutCancel(ctx)); unlockErr != nil &&
			!errors.Is(unlockErr, coordination.ErrLockNotHeld) {
			c.log.Warn("Failed to release restart lock", logger.Error(unlockErr))
		}
	}()

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.keys.All()...)
		if len(members) > 0 {
			pipe.SAdd(ctx, c.keys.DupeFilter, fps...)
			pipe.ZAdd(ctx, c.keys.Queue, members...)
		}
		pipe.Set(ctx, c.keys.Sequence, len(members), 0)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("restart transaction: %w", err)
	}

	c.log.Info("Frontier restarted",
		logger.Int("seeded", len(members)),
		logger.String("queue_key", c.keys.Queue),
	)
	return len(members), nil
}

func (c *Coordinator) prepareSeeds(seeds []*domain.Request) ([]redis.Z, []any, error) {
	seen := make(map[string]struct{}, len(seeds))
	members := make([]redis.Z, 0, len(seeds))
	fps := make([]any, 0, len(seeds))

	for _, seed := range seeds {
		fp, err := Fingerprint(seed)
		if err != nil {
			return nil, nil, fmt.Errorf("seed request: %w", err)
		}
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		member, err := encodeMember(int64(len(members)+1), seed)
		if err != nil {
			return nil, nil, err
		}
		members = append(members, redis.Z{Score: score(seed.Priority), Member: member})
		fps = append(fps, fp)
	}
	return members, fps, nil
}
