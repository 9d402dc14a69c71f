package worker_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/guildcrawl/internal/discovery"
	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/extract"
	"github.com/jonesrussell/guildcrawl/internal/fetcher"
	"github.com/jonesrussell/guildcrawl/internal/frontier"
	"github.com/jonesrussell/guildcrawl/internal/logger"
	"github.com/jonesrussell/guildcrawl/internal/metrics"
	"github.com/jonesrussell/guildcrawl/internal/proxy"
	"github.com/jonesrussell/guildcrawl/internal/worker"
	fetchermocks "github.com/jonesrussell/guildcrawl/testutils/mocks/fetcher"
	workermocks "github.com/jonesrussell/guildcrawl/testutils/mocks/worker"
)

const (
	seedURL  = "https://disboard.org/servers?fl=de"
	dateHdr  = "Mon, 10 Jul 2023 21:57:03 GMT"
	dateUnix = 1689026223

	listingPage = `<html><head><title>Discord Server | DISBOARD</title></head><body>
<a class="category" href="/servers/category/gaming">Gaming</a>
<div class="server-info">
  <div class="server-name"><a href="/server/111111111111111111">Anime Lounge</a></div>
  <a class="server-category" href="/servers/category/anime">Anime</a>
</div>
<div class="server-body">
  <div class="server-description">Anime chat</div>
  <a class="tag" href="/servers/tag/anime" data-id="39" title="anime">anime</a>
</div>
<div class="server-info">
  <div class="server-name"><a href="/server/222222222222222222">Pixel Guild</a></div>
  <a class="server-category" href="/servers/category/gaming">Gaming</a>
</div>
<div class="server-body">
  <div class="server-description">Retro games</div>
  <a class="tag" href="/servers/tag/anime" data-id="39" title="anime">anime</a>
</div>
<ul class="pagination"><li class="next"><a href="/servers/2">Next</a></li></ul>
</body></html>`

	emptyPage      = `<html><head><title>Discord Server | DISBOARD</title></head><body><ul class="pagination"></ul></body></html>`
	deniedPage     = `<html><head><title>` + deniedTitle + `</title></head><body><h1>Access denied</h1></body></html>`
	unexpectedPage = `<html><head><title>Welcome to nginx!</title></head><body></body></html>`
)

func testConfig() worker.Config {
	return worker.Config{
		Workers:          1,
		PopTimeout:       10 * time.Millisecond,
		IdleTimeout:      50 * time.Millisecond,
		MaxDenialRetries: worker.DefaultMaxDenialRetries,
		ReportInterval:   10 * time.Millisecond,
	}
}

type queueFixture struct {
	client *redis.Client
	filter *frontier.DupeFilter
	queue  *frontier.Queue
}

func newQueue(t *testing.T) *queueFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys := frontier.KeysFor("disboard")
	filter := frontier.NewDupeFilter(client, keys.DupeFilter)
	return &queueFixture{
		client: client,
		filter: filter,
		queue:  frontier.NewQueue(client, keys, filter, frontier.WithPollInterval(5*time.Millisecond)),
	}
}

func newDiscoverer(t *testing.T) *discovery.Discoverer {
	t.Helper()

	d, err := discovery.New(discovery.Config{
		FollowPagination: true,
		FollowCategory:   true,
		FollowTag:        true,
	})
	require.NoError(t, err)
	return d
}

func newPool(f worker.Frontier, store worker.ItemStore, fetchers []worker.Fetcher, d worker.Discoverer, cfg worker.Config) (*worker.Pool, *metrics.Crawl) {
	m := metrics.New(prometheus.NewRegistry())
	return worker.NewPool(f, store, fetchers, d, extract.NewClassifier(nil), m, logger.NewNop(), cfg), m
}

func run(t *testing.T, p *worker.Pool) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Run(ctx)
}

func success(body string) proxy.Outcome {
	return proxy.Outcome{
		State:  proxy.StateSuccess,
		Status: http.StatusOK,
		Response: &fetcher.Response{
			URL:        seedURL,
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Date": []string{dateHdr}},
			Body:       []byte(body),
		},
	}
}

func idlePop(ctx context.Context, timeout time.Duration) (*domain.Request, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, frontier.ErrEmpty
	}
}

// recordingFetcher remembers every request it was asked to fetch.
type recordingFetcher struct {
	mu   sync.Mutex
	next worker.Fetcher
	seen []*domain.Request
}

func (r *recordingFetcher) Fetch(ctx context.Context, req *domain.Request) (proxy.Outcome, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req.Clone())
	r.mu.Unlock()
	return r.next.Fetch(ctx, req)
}

func TestPool_ListingRecordsAndDiscovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := workermocks.NewMockFrontier(ctrl)
	store := workermocks.NewMockItemStore(ctrl)
	fetch := workermocks.NewMockFetcher(ctrl)

	seed := domain.NewRequest(seedURL, 100, domain.SourceSeed)

	gomock.InOrder(
		f.EXPECT().Pop(gomock.Any(), gomock.Any()).Return(seed, nil),
		f.EXPECT().Pop(gomock.Any(), gomock.Any()).DoAndReturn(idlePop).AnyTimes(),
	)
	f.EXPECT().Len(gomock.Any()).Return(int64(0), nil).AnyTimes()

	var pushed []*domain.Request
	f.EXPECT().Push(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *domain.Request) (bool, error) {
			pushed = append(pushed, req)
			return true, nil
		}).Times(5)

	fetch.EXPECT().Fetch(gomock.Any(), seed).Return(success(listingPage), nil)

	var recorded []domain.ServerRecord
	store.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec domain.ServerRecord) (domain.Classification, error) {
			recorded = append(recorded, rec)
			return domain.ClassificationNew, nil
		}).Times(2)

	p, m := newPool(f, store, []worker.Fetcher{fetch}, newDiscoverer(t), testConfig())
	require.NoError(t, run(t, p))

	require.Len(t, recorded, 2)
	assert.Equal(t, "111111111111111111", recorded[0].GuildID)
	assert.Equal(t, "222222222222222222", recorded[1].GuildID)
	assert.InDelta(t, float64(dateUnix), recorded[0].ScrapeTime, 0)

	require.Len(t, pushed, 5)
	assert.Equal(t, "https://disboard.org/servers/2", pushed[0].URL)
	assert.Equal(t, 52, pushed[0].Priority)
	assert.Equal(t, "https://disboard.org/servers/category/gaming", pushed[1].URL)
	assert.Equal(t, 27, pushed[1].Priority)
	assert.Equal(t, "https://disboard.org/servers/category/gaming?sort=-member_count", pushed[2].URL)
	assert.Equal(t, "https://disboard.org/servers/tag/anime", pushed[3].URL)
	assert.Equal(t, 3, pushed[3].Priority)

	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues(string(domain.PageListing))), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ItemsTotal.WithLabelValues(string(domain.ClassificationNew))), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsEnqueued.WithLabelValues(domain.SourceCategory)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.WorkersActive), 0)
}

func TestPool_RetryReentersFrontierWithoutTouchingDupeFilter(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	accepted, err := q.queue.Push(ctx, domain.NewRequest(seedURL, 47, domain.SourceSeed))
	require.NoError(t, err)
	require.True(t, accepted)

	ctrl := gomock.NewController(t)
	doer := fetchermocks.NewMockDoer(ctrl)
	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any(), gomock.Any()).
			Return(&fetcher.Response{URL: seedURL, StatusCode: http.StatusServiceUnavailable}, nil),
		doer.EXPECT().Do(gomock.Any(), gomock.Any()).
			Return(&fetcher.Response{URL: seedURL, StatusCode: http.StatusOK, Body: []byte(emptyPage)}, nil),
	)

	machine := proxy.NewMachine(doer, "", proxy.DefaultConfig(), proxy.NewGate(false, 1, 0), logger.NewNop())
	rec := &recordingFetcher{next: machine}
	store := workermocks.NewMockItemStore(ctrl)

	p, m := newPool(q.queue, store, []worker.Fetcher{rec}, newDiscoverer(t), testConfig())
	require.NoError(t, run(t, p))

	require.Len(t, rec.seen, 2)
	retry := rec.seen[1]
	assert.Equal(t, seedURL, retry.URL)
	assert.Equal(t, 1, retry.RetryCount)
	assert.Equal(t, 37, retry.Priority)
	assert.True(t, retry.DontFilter)
	assert.Equal(t, domain.SourceRetry, retry.Source())

	n, err := q.filter.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	size, err := q.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	assert.InDelta(t, 1, testutil.ToFloat64(m.ProxyOutcomes.WithLabelValues(string(proxy.StateRetryable), "direct")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsEnqueued.WithLabelValues(domain.SourceRetry)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues(string(domain.PageEmpty))), 0)
}

func TestPool_DenialRefetchesWithoutExpansion(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	_, err := q.queue.Push(ctx, domain.NewRequest(seedURL, 47, domain.SourceSeed))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetch := workermocks.NewMockFetcher(ctrl)
	store := workermocks.NewMockItemStore(ctrl)
	disc := workermocks.NewMockDiscoverer(ctrl)

	gomock.InOrder(
		fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(success(deniedPage), nil),
		fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *domain.Request) (proxy.Outcome, error) {
				assert.Equal(t, seedURL, req.URL)
				assert.Equal(t, 47, req.Priority)
				assert.Equal(t, 1, req.DenialCount)
				assert.Zero(t, req.RetryCount)
				assert.True(t, req.DontFilter)
				assert.Equal(t, domain.SourceDenial, req.Source())
				return success(listingPage), nil
			}),
	)
	store.EXPECT().Record(gomock.Any(), gomock.Any()).Return(domain.ClassificationNew, nil).Times(2)
	disc.EXPECT().Discover(gomock.Any()).Return(nil).Times(1)

	p, m := newPool(q.queue, store, []worker.Fetcher{fetch}, disc, testConfig())
	require.NoError(t, run(t, p))

	n, err := q.filter.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "denial re-fetch must bypass the dupe filter")

	assert.InDelta(t, 1, testutil.ToFloat64(m.Denials), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues(string(domain.PageDenial))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsEnqueued.WithLabelValues(domain.SourceDenial)), 0)
}

func TestPool_DenialBudgetIsBounded(t *testing.T) {
	q := newQueue(t)
	_, err := q.queue.Push(context.Background(), domain.NewRequest(seedURL, 47, domain.SourceSeed))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetch := workermocks.NewMockFetcher(ctrl)
	fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(success(deniedPage), nil).Times(3)

	cfg := testConfig()
	cfg.MaxDenialRetries = 2

	p, m := newPool(q.queue, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{fetch}, workermocks.NewMockDiscoverer(ctrl), cfg)
	require.NoError(t, run(t, p))

	assert.InDelta(t, 3, testutil.ToFloat64(m.Denials), 0)
}

func TestPool_FatalFailureIsIsolated(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	first := domain.NewRequest("https://disboard.org/servers/1", 60, domain.SourcePagination)
	second := domain.NewRequest("https://disboard.org/servers/2", 50, domain.SourcePagination)
	for _, r := range []*domain.Request{first, second} {
		_, err := q.queue.Push(ctx, r)
		require.NoError(t, err)
	}

	ctrl := gomock.NewController(t)
	fetch := workermocks.NewMockFetcher(ctrl)
	gomock.InOrder(
		fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).
			Return(proxy.Outcome{State: proxy.StateFatal, Status: http.StatusForbidden},
				&proxy.FatalError{URL: first.URL, Status: http.StatusForbidden, Reason: "non-retryable status"}),
		fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(success(emptyPage), nil),
	)

	p, m := newPool(q.queue, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{fetch}, newDiscoverer(t), testConfig())
	require.NoError(t, run(t, p))

	assert.InDelta(t, 1, testutil.ToFloat64(m.FatalFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues(string(domain.PageEmpty))), 0)
}

func TestPool_UnexpectedPageIsSkipped(t *testing.T) {
	q := newQueue(t)
	_, err := q.queue.Push(context.Background(), domain.NewRequest(seedURL, 47, domain.SourceSeed))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetch := workermocks.NewMockFetcher(ctrl)
	fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(success(unexpectedPage), nil)

	p, m := newPool(q.queue, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{fetch}, workermocks.NewMockDiscoverer(ctrl), testConfig())
	require.NoError(t, run(t, p))

	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues(string(domain.PageUnexpected))), 0)
}

func TestPool_StoreErrorStopsAllWorkers(t *testing.T) {
	q := newQueue(t)
	_, err := q.queue.Push(context.Background(), domain.NewRequest(seedURL, 47, domain.SourceSeed))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetch := workermocks.NewMockFetcher(ctrl)
	fetch.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(success(listingPage), nil)

	storeErr := errors.New("database unavailable")
	store := workermocks.NewMockItemStore(ctrl)
	store.EXPECT().Record(gomock.Any(), gomock.Any()).Return(domain.Classification(""), storeErr)

	cfg := testConfig()
	cfg.Workers = 3
	cfg.IdleTimeout = time.Minute

	p, _ := newPool(q.queue, store, []worker.Fetcher{fetch}, workermocks.NewMockDiscoverer(ctrl), cfg)
	err = run(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}

func TestPool_FrontierErrorStopsPool(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := workermocks.NewMockFrontier(ctrl)
	f.EXPECT().Pop(gomock.Any(), gomock.Any()).Return(nil, redis.ErrClosed)
	f.EXPECT().Len(gomock.Any()).Return(int64(0), nil).AnyTimes()

	p, _ := newPool(f, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{workermocks.NewMockFetcher(ctrl)}, workermocks.NewMockDiscoverer(ctrl), testConfig())
	err := run(t, p)
	assert.ErrorIs(t, err, redis.ErrClosed)
}

func TestPool_IdleWorkersExit(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := workermocks.NewMockFrontier(ctrl)
	f.EXPECT().Pop(gomock.Any(), gomock.Any()).DoAndReturn(idlePop).MinTimes(2)
	f.EXPECT().Len(gomock.Any()).Return(int64(0), nil).AnyTimes()

	cfg := testConfig()
	cfg.Workers = 2

	p, m := newPool(f, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{workermocks.NewMockFetcher(ctrl)}, workermocks.NewMockDiscoverer(ctrl), cfg)

	start := time.Now()
	require.NoError(t, run(t, p))
	assert.GreaterOrEqual(t, time.Since(start), cfg.IdleTimeout)
	assert.InDelta(t, 0, testutil.ToFloat64(m.WorkersActive), 0)
}

func TestPool_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := workermocks.NewMockFrontier(ctrl)
	f.EXPECT().Pop(gomock.Any(), gomock.Any()).DoAndReturn(idlePop).AnyTimes()
	f.EXPECT().Len(gomock.Any()).Return(int64(0), nil).AnyTimes()

	cfg := testConfig()
	cfg.IdleTimeout = time.Hour

	p, _ := newPool(f, workermocks.NewMockItemStore(ctrl), []worker.Fetcher{workermocks.NewMockFetcher(ctrl)}, workermocks.NewMockDiscoverer(ctrl), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
}

func TestPool_RequiresFetchers(t *testing.T) {
	ctrl := gomock.NewController(t)
	p, _ := newPool(workermocks.NewMockFrontier(ctrl), workermocks.NewMockItemStore(ctrl), nil, workermocks.NewMockDiscoverer(ctrl), testConfig())
	assert.Error(t, p.Run(context.Background()))
}

func TestNewPool_AppliesDefaults(t *testing.T) {
	cfg := worker.DefaultConfig()
	assert.Equal(t, worker.DefaultWorkers, cfg.Workers)
	assert.Equal(t, worker.DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, worker.DefaultMaxDenialRetries, cfg.MaxDenialRetries)
}
