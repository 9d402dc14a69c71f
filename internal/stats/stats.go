// Package stats reports the size of the shared crawl state.
package stats

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of one spider's crawl state.
type Snapshot struct {
	Spider        string    `json:"spider"`
	FrontierSize  int64     `json:"frontier_size"`
	SeenRequests  int64     `json:"seen_requests"`
	SeenGuilds    int64     `json:"seen_guilds"`
	StoredRecords int64     `json:"stored_records"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Lener is anything with a size, such as the frontier queue or dupe filter.
type Lener interface {
	Len(ctx context.Context) (int64, error)
}

// SeenCounter counts distinct guild IDs of the current crawl generation.
type SeenCounter interface {
	Seen(ctx context.Context) (int64, error)
}

// RecordCounter counts persisted records.
type RecordCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector gathers a Snapshot from the live stores.
type Collector struct {
	spider   string
	frontier Lener
	filter   Lener
	seen     SeenCounter
	records  RecordCounter
	now      func() time.Time
}

// NewCollector creates a collector. records may be nil when no database is configured.
func NewCollector(spider string, frontier, filter Lener, seen SeenCounter, records RecordCounter) *Collector {
	return &Collector{
		spider:   spider,
		frontier: frontier,
		filter:   filter,
		seen:     seen,
		records:  records,
		now:      time.Now,
	}
}

// Snapshot reads every counter. The first failure is returned.
func (c *Collector) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Spider: c.spider, CollectedAt: c.now().UTC()}

	var err error
	if snap.FrontierSize, err = c.frontier.Len(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("frontier size: %w", err)
	}
	if snap.SeenRequests, err = c.filter.Len(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("seen requests: %w", err)
	}
	if snap.SeenGuilds, err = c.seen.Seen(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("seen guilds: %w", err)
	}
	if c.records != nil {
		if snap.StoredRecords, err = c.records.Count(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("stored records: %w", err)
		}
	}
	return snap, nil
}
