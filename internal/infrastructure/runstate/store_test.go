package runstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

func sampleState() domain.RunState {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.RunState{
		LastRunAt:      &at,
		ProcessedCount: 3,
		SuccessCount:   1,
		FailedCount:    1,
		SkippedCount:   1,
		FailedLinks:    []string{"https://recipes.test/broken"},
	}
}

func exerciseStore(t *testing.T, store ports.RunStateStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := sampleState()
	require.NoError(t, store.Save(ctx, want))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.LastRunAt.Equal(*got.LastRunAt))
	assert.Equal(t, want.FailedLinks, got.FailedLinks)
	assert.Equal(t, want.ProcessedCount, got.ProcessedCount)

	next := domain.RunState{LastRunAt: want.LastRunAt}
	require.NoError(t, store.Save(ctx, next))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, got.ProcessedCount)
	assert.Empty(t, got.FailedLinks)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "last_run.json")))
}

func TestFileStoreLayout(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_run.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), domain.RunState{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{`"last_run_at": null`, `"processed_count"`, `"success_count"`, `"failed_count"`, `"skipped_count"`, `"failed_urls": []`} {
		assert.Contains(t, string(raw), key)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "last_run.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrRunStateCorrupt)
}

func TestFileStoreUnreadable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// a directory where the file should be is an I/O failure, not corruption
	_, err := NewFileStore(dir).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRunStateCorrupt)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	store, _ := newRedisStore(t)
	exerciseStore(t, store)
}

func TestRedisStoreCorrupt(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set(defaultKey, "garbage"))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrRunStateCorrupt)
}

func TestRedisStoreKey(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t)
	require.NoError(t, store.Save(context.Background(), domain.RunState{}))
	assert.True(t, mr.Exists("recipe-collector:run-state"))

	custom := NewRedisStore(store.client, "custom:state")
	require.NoError(t, custom.Save(context.Background(), domain.RunState{}))
	assert.True(t, mr.Exists("custom:state"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	t.Parallel()
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRunStateCorrupt)
	assert.Error(t, store.Save(context.Background(), sampleState()))
}
