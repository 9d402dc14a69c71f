package frontier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

// ErrEmpty is returned by Pop when no request arrived before the timeout.
var ErrEmpty = errors.New("frontier: queue empty")

const (
	// DefaultPollInterval is how often Pop retries ZPOPMIN while waiting.
	DefaultPollInterval = 200 * time.Millisecond

	seqWidth     = 20
	memberSep    = "|"
	minPollSleep = time.Millisecond
)

// enqueueScript runs the dedup check and the enqueue in one round trip.
// KEYS: queue, sequence, dupefilter. ARGV: score, payload, fingerprint ("" for
// dont_filter requests). Returns 0 for a duplicate, otherwise 1.
//
// A Lua script is not rolled back when a command fails, so every command that
// can fail runs before the first write to the filter: the fingerprint is only
// recorded once the member is in the queue.
var enqueueScript = redis.NewScript(`
local fp = ARGV[3]
if fp ~= '' and redis.call('SISMEMBER', KEYS[3], fp) == 1 then
	return 0
end
local s = tostring(redis.call('INCR', KEYS[2]))
local member = string.rep('0', 20 - string.len(s)) .. s .. '|' .. ARGV[2]
redis.call('ZADD', KEYS[1], ARGV[1], member)
if fp ~= '' then
	redis.call('SADD', KEYS[3], fp)
end
return 1
`)

// Queue is the shared priority frontier. Higher priority pops first; equal
// priorities pop in push order.
type Queue struct {
	client       redis.UniversalClient
	keys         Keys
	filter       *DupeFilter
	pollInterval time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// NewQueue creates a queue that records non-DontFilter pushes in filter.
func NewQueue(client redis.UniversalClient, keys Keys, filter *DupeFilter, opts ...QueueOption) *Queue {
	q := &Queue{
		client:       client,
		keys:         keys,
		filter:       filter,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues req. Unless DontFilter is set, a request whose fingerprint is
// already in the dedup filter is discarded with accepted=false. The check,
// the filter insert and the enqueue are atomic.
func (q *Queue) Push(ctx context.Context, req *domain.Request) (bool, error) {
	var fp string
	if !req.DontFilter {
		var err error
		if fp, err = Fingerprint(req); err != nil {
			return false, err
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.keys.Queue, q.keys.Sequence, q.filter.key},
		score(req.Priority), string(payload), fp,
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue request: %w", err)
	}
	return added == 1, nil
}

// Pop removes and returns the highest-priority request, waiting up to timeout
// for one to arrive. It returns ErrEmpty when the timeout elapses.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*domain.Request, error) {
	deadline := time.Now().Add(timeout)

	for {
		req, err := q.popOnce(ctx)
		if err == nil || !errors.Is(err, ErrEmpty) {
			return req, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}

		wait := min(q.pollInterval, remaining)
		wait = max(wait, minPollSleep)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) popOnce(ctx context.Context) (*domain.Request, error) {
	zs, err := q.client.ZPopMin(ctx, q.keys.Queue, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("pop request: %w", err)
	}
	if len(zs) == 0 {
		return nil, ErrEmpty
	}

	member, ok := zs[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("pop request: unexpected member type %T", zs[0].Member)
	}
	return decodeMember(member)
}

// Len returns the number of pending requests.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.keys.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

// Clear drops every pending request and resets the sequence counter.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.keys.Queue, q.keys.Sequence).Err(); err != nil {
		return fmt.Errorf("queue clear: %w", err)
	}
	return nil
}

func score(priority int) float64 {
	return float64(-priority)
}

func encodeMember(seq int64, req *domain.Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	s := strconv.FormatInt(seq, 10)
	return strings.Repeat("0", seqWidth-len(s)) + s + memberSep + string(payload), nil
}

func decodeMember(member string) (*domain.Request, error) {
	_, payload, found := strings.Cut(member, memberSep)
	if !found {
		return nil, fmt.Errorf("decode request: malformed member %q", member)
	}

	var req domain.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}
