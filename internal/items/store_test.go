package items_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/guildcrawl/internal/domain"
	"github.com/jonesrussell/guildcrawl/internal/items"
)

// recordingRepo is a Repository that keeps the last write per guild.
type recordingRepo struct {
	mu     sync.Mutex
	writes int
	rows   map[string]domain.ServerRecord
	err    error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{rows: make(map[string]domain.ServerRecord)}
}

func (r *recordingRepo) Upsert(_ context.Context, rec domain.ServerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.writes++
	r.rows[rec.GuildID] = rec
	return nil
}

func newStore(t *testing.T, repo items.Repository) (*items.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return items.NewStore(client, "disboard:guild_id", repo), mr
}

func TestStore_RecordClassifiesAndAlwaysUpserts(t *testing.T) {
	repo := newRecordingRepo()
	store, _ := newStore(t, repo)
	ctx := context.Background()

	rec := domain.ServerRecord{GuildID: "42", ServerName: "first"}

	class, err := store.Record(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationNew, class)

	rec.ServerName = "second"
	class, err = store.Record(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationSeen, class)

	assert.Equal(t, 2, repo.writes)
	assert.Equal(t, "second", repo.rows["42"].ServerName)

	seen, err := store.Seen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seen)
}

func TestStore_RecordSurfacesRepositoryError(t *testing.T) {
	repo := newRecordingRepo()
	repo.err = errors.New("db down")
	store, _ := newStore(t, repo)

	class, err := store.Record(context.Background(), domain.ServerRecord{GuildID: "1"})
	require.ErrorIs(t, err, repo.err)
	assert.Equal(t, domain.ClassificationNew, class)
}

func TestStore_ClassifyFailsWhenRedisDown(t *testing.T) {
	store, mr := newStore(t, newRecordingRepo())
	mr.Close()

	_, err := store.ClassifyAndRecord(context.Background(), "1")
	require.Error(t, err)
}
