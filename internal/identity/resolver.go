// Package identity maps player names to stable numeric ids.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/retry"
	"github.com/freeeve/gamevault/internal/store"
)

// PlayerStore creates or finds players. UpsertPlayer must be idempotent
// under concurrent calls for the same name.
type PlayerStore interface {
	UpsertPlayer(ctx context.Context, name string) (uint32, error)
}

// Failures maps names that could not be resolved to the last error.
type Failures map[string]error

// Config configures a Resolver.
type Config struct {
	Parallelism int              // Concurrent store upserts (default 8)
	CacheSize   int              // In-memory name cache entries (default 100000)
	Redis       *redis.Client    // Optional shared cache tier
	RedisTTL    time.Duration    // Redis entry lifetime (default 24h)
	Retry       retry.Policy     // Upsert retry policy (default R=5, 100ms, x2)
	Metrics     *metrics.Metrics // Optional
	Logger      zerolog.Logger   // Logger
}

// Resolver resolves batches of names. The store's uniqueness constraint is
// the source of truth; both cache tiers only short-circuit it.
type Resolver struct {
	cfg   Config
	st    PlayerStore
	cache *lru.Cache[string, uint32]
	log   zerolog.Logger
}

// RedisKeyPrefix prefixes shared cache keys.
const RedisKeyPrefix = "gamevault:player:"

// New creates a resolver backed by st.
func New(st PlayerStore, cfg Config) (*Resolver, error) {
	if st == nil {
		return nil, errors.New("identity: nil player store")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100_000
	}
	if cfg.RedisTTL == 0 {
		cfg.RedisTTL = 24 * time.Hour
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Default()
	}
	cache, err := lru.New[string, uint32](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, st: st, cache: cache, log: cfg.Logger}, nil
}

// ResolveBatch returns an id for every distinct non-empty name. Names whose
// upsert exhausted its retries are reported in Failures and are absent from
// the map; they never affect the other names.
func (r *Resolver) ResolveBatch(ctx context.Context, names []string) (map[string]uint32, Failures) {
	ids := make(map[string]uint32, len(names))
	failures := Failures{}

	var pending []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if id, ok := r.cache.Get(name); ok {
			ids[name] = id
			continue
		}
		pending = append(pending, name)
	}
	if len(pending) == 0 {
		return ids, failures
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Parallelism)
	for _, name := range pending {
		g.Go(func() error {
			id, err := r.resolve(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[name] = err
				return nil
			}
			ids[name] = id
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		r.log.Warn().Int("failed", len(failures)).Int("resolved", len(ids)).Msg("player resolution incomplete")
	}
	return ids, failures
}

func (r *Resolver) resolve(ctx context.Context, name string) (uint32, error) {
	if id, ok := r.redisGet(ctx, name); ok {
		r.cache.Add(name, id)
		return id, nil
	}

	var id uint32
	retries, err := r.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = r.st.UpsertPlayer(ctx, name)
		return err
	}, store.IsTransient)
	r.cfg.Metrics.AddStoreOps(retries + 1)
	r.cfg.Metrics.AddStoreRetries(retries)
	if err != nil {
		return 0, fmt.Errorf("resolve %q after %d retries: %w", name, retries, err)
	}

	r.cache.Add(name, id)
	r.redisSet(ctx, name, id)
	return id, nil
}

func redisKey(name string) string { return RedisKeyPrefix + name }

func (r *Resolver) redisGet(ctx context.Context, name string) (uint32, bool) {
	if r.cfg.Redis == nil {
		return 0, false
	}
	raw, err := r.cfg.Redis.Get(ctx, redisKey(name)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		r.log.Debug().Err(err).Str("name", name).Msg("redis get failed")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint32(id), true
}

func (r *Resolver) redisSet(ctx context.Context, name string, id uint32) {
	if r.cfg.Redis == nil {
		return
	}
	if err := r.cfg.Redis.Set(ctx, redisKey(name), strconv.FormatUint(uint64(id), 10), r.cfg.RedisTTL).Err(); err != nil {
		r.log.Debug().Err(err).Str("name", name).Msg("redis set failed")
	}
}

// Cached returns the number of names in the in-memory cache.
func (r *Resolver) Cached() int {
	return r.cache.Len()
}
