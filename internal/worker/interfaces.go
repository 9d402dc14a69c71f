package worker

import (
	"context"
	"time"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
	"github.com/jonesrussell/guildcrawl/internal/proxy"
)

// Frontier is the shared request queue.
type Frontier interface {
	Push(ctx context.Context, req *domain.Request) (bool, error)
	Pop(ctx context.Context, timeout time.Duration) (*domain.Request, error)
	Len(ctx context.Context) (int64, error)
}

// ItemStore classifies and persists extracted records.
type ItemStore interface {
	Record(ctx context.Context, rec domain.ServerRecord) (domain.Classification, error)
}

// Fetcher performs one attempt under the proxy retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, req *domain.Request) (proxy.Outcome, error)
}

// Discoverer expands a page into follow-up requests.
type Discoverer interface {
	Discover(page extract.Page) []*domain.Request
}
