package identity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/retry"
	"github.com/freeeve/gamevault/internal/store"
)

// fakeStore hands out sequential ids and can fail a name a fixed number of
// times.
type fakeStore struct {
	mu       sync.Mutex
	ids      map[string]uint32
	calls    map[string]int
	failures map[string]int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ids:      map[string]uint32{},
		calls:    map[string]int{},
		failures: map[string]int{},
		err:      fmt.Errorf("conn reset: %w", store.ErrTransient),
	}
}

func (f *fakeStore) UpsertPlayer(_ context.Context, name string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.failures[name] > 0 {
		f.failures[name]--
		return 0, f.err
	}
	id, ok := f.ids[name]
	if !ok {
		id = uint32(len(f.ids) + 1)
		f.ids[name] = id
	}
	return id, nil
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxRetries: 5, BaseDelay: time.Millisecond, Multiplier: 2}
}

func TestResolveBatch_CollapsesDuplicates(t *testing.T) {
	fs := newFakeStore()
	r, err := New(fs, Config{Retry: fastRetry()})
	require.NoError(t, err)

	ids, failures := r.ResolveBatch(context.Background(), []string{"Tal", "Petrosian", "Tal", "", "Tal"})
	require.Empty(t, failures)
	require.Len(t, ids, 2)
	require.NotEqual(t, ids["Tal"], ids["Petrosian"])
	require.Equal(t, 1, fs.calls["Tal"])

	again, failures := r.ResolveBatch(context.Background(), []string{"Tal"})
	require.Empty(t, failures)
	require.Equal(t, ids["Tal"], again["Tal"])
	require.Equal(t, 1, fs.calls["Tal"], "second lookup should hit the cache")
	require.Equal(t, 2, r.Cached())
}

func TestResolveBatch_RetriesTransient(t *testing.T) {
	fs := newFakeStore()
	fs.failures["Botvinnik"] = 4
	m := metrics.New()
	r, err := New(fs, Config{Retry: fastRetry(), Metrics: m})
	require.NoError(t, err)

	ids, failures := r.ResolveBatch(context.Background(), []string{"Botvinnik"})
	require.Empty(t, failures)
	require.NotZero(t, ids["Botvinnik"])

	s := m.Snapshot()
	require.EqualValues(t, 4, s.StoreRetries)
	require.EqualValues(t, 5, s.StoreOps)
}

func TestResolveBatch_ExhaustionIsolated(t *testing.T) {
	fs := newFakeStore()
	fs.failures["Smyslov"] = 100
	r, err := New(fs, Config{Retry: fastRetry()})
	require.NoError(t, err)

	ids, failures := r.ResolveBatch(context.Background(), []string{"Smyslov", "Spassky"})
	require.Contains(t, failures, "Smyslov")
	require.ErrorIs(t, failures["Smyslov"], store.ErrTransient)
	require.NotContains(t, ids, "Smyslov")
	require.NotZero(t, ids["Spassky"])
	require.Equal(t, 6, fs.calls["Smyslov"])
}

func TestResolveBatch_PermanentErrorNotRetried(t *testing.T) {
	fs := newFakeStore()
	fs.err = errors.New("syntax error")
	fs.failures["Fischer"] = 1
	r, err := New(fs, Config{Retry: fastRetry()})
	require.NoError(t, err)

	_, failures := r.ResolveBatch(context.Background(), []string{"Fischer"})
	require.Contains(t, failures, "Fischer")
	require.Equal(t, 1, fs.calls["Fischer"])
}

func TestResolveBatch_RedisTier(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fs := newFakeStore()
	first, err := New(fs, Config{Redis: rdb, Retry: fastRetry()})
	require.NoError(t, err)
	ids, failures := first.ResolveBatch(context.Background(), []string{"Karpov"})
	require.Empty(t, failures)

	v, err := mr.Get(RedisKeyPrefix + "Karpov")
	require.NoError(t, err)
	require.Equal(t, fmt.Sprint(ids["Karpov"]), v)

	// A second run with a cold LRU finds the id in redis without the store.
	second, err := New(fs, Config{Redis: rdb, Retry: fastRetry()})
	require.NoError(t, err)
	again, failures := second.ResolveBatch(context.Background(), []string{"Karpov"})
	require.Empty(t, failures)
	require.Equal(t, ids["Karpov"], again["Karpov"])
	require.Equal(t, 1, fs.calls["Karpov"])
}

func TestResolveBatch_RedisKeepsPaddedNamesApart(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fs := newFakeStore()
	first, err := New(fs, Config{Redis: rdb, Retry: fastRetry()})
	require.NoError(t, err)
	padded, failures := first.ResolveBatch(context.Background(), []string{"Anand "})
	require.Empty(t, failures)

	// A cold resolver must not pick up the padded name's id from redis.
	second, err := New(fs, Config{Redis: rdb, Retry: fastRetry()})
	require.NoError(t, err)
	plain, failures := second.ResolveBatch(context.Background(), []string{"Anand"})
	require.Empty(t, failures)
	require.NotEqual(t, padded["Anand "], plain["Anand"])
	require.Equal(t, fs.ids["Anand"], plain["Anand"])
	require.Equal(t, 1, fs.calls["Anand"])
}

func TestResolveBatch_RedisDownFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	fs := newFakeStore()
	r, err := New(fs, Config{Redis: rdb, Retry: fastRetry()})
	require.NoError(t, err)
	ids, failures := r.ResolveBatch(context.Background(), []string{"Kasparov"})
	require.Empty(t, failures)
	require.NotZero(t, ids["Kasparov"])
}

func TestResolveBatch_ConcurrentResolversAgree(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{
		Driver:       "sqlite",
		URL:          filepath.Join(t.TempDir(), "players.db"),
		MaxOpenConns: 8,
	})
	require.NoError(t, err)
	defer db.Close()

	names := make([]string, 40)
	for i := range names {
		names[i] = fmt.Sprintf("player-%02d", i)
	}

	const resolvers = 6
	results := make([]map[string]uint32, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := New(db, Config{Parallelism: 4, Retry: fastRetry()})
			if err != nil {
				t.Error(err)
				return
			}
			ids, failures := r.ResolveBatch(ctx, names)
			if len(failures) > 0 {
				t.Errorf("resolver %d failures: %v", i, failures)
			}
			results[i] = ids
		}(i)
	}
	wg.Wait()

	for i := 1; i < resolvers; i++ {
		require.Equal(t, results[0], results[i], "resolver %d disagrees", i)
	}
	n, err := db.CountPlayers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, len(names), n)
}
