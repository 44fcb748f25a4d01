// Package governor bounds concurrent use of independent resources: open
// files, downloads and parse workers.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrResourceExhausted is returned when a slot could not be acquired within
// the gate's acquire timeout.
var ErrResourceExhausted = errors.New("resource exhausted")

// Gate is a counting semaphore with scoped acquisition. A nil *Gate admits
// everything.
type Gate struct {
	name    string
	size    int64
	timeout time.Duration
	sem     *semaphore.Weighted
	inUse   int64
}

// NewGate creates a gate with size slots. timeout bounds how long Do waits
// for a slot; 0 waits until ctx is done.
func NewGate(name string, size int, timeout time.Duration) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{
		name:    name,
		size:    int64(size),
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(size)),
	}
}

// Do runs fn while holding one slot. The slot is released on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if g == nil {
		return fn()
	}
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return fn()
}

func (g *Gate) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s gate: waited %v: %w", g.name, g.timeout, ErrResourceExhausted)
	}
	atomic.AddInt64(&g.inUse, 1)
	return nil
}

func (g *Gate) release() {
	atomic.AddInt64(&g.inUse, -1)
	g.sem.Release(1)
}

// Name returns the gate's name.
func (g *Gate) Name() string {
	if g == nil {
		return ""
	}
	return g.name
}

// Size returns the number of slots.
func (g *Gate) Size() int {
	if g == nil {
		return 0
	}
	return int(g.size)
}

// InUse returns the number of currently held slots.
func (g *Gate) InUse() int {
	if g == nil {
		return 0
	}
	return int(atomic.LoadInt64(&g.inUse))
}

// Config sizes the three gates.
type Config struct {
	MaxOpenFiles        int           // default 4
	DownloadConcurrency int           // default 2
	WorkerPoolSize      int           // default NumCPU-1
	AcquireTimeout      time.Duration // 0 = unbounded wait
}

// Governor groups the independent gates.
type Governor struct {
	Files     *Gate
	Downloads *Gate
	Workers   *Gate
}

// New creates the three gates. Zero sizes fall back to defaults.
func New(cfg Config) *Governor {
	if cfg.MaxOpenFiles == 0 {
		cfg.MaxOpenFiles = 4
	}
	if cfg.DownloadConcurrency == 0 {
		cfg.DownloadConcurrency = 2
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = defaultWorkers()
	}
	return &Governor{
		Files:     NewGate("files", cfg.MaxOpenFiles, cfg.AcquireTimeout),
		Downloads: NewGate("downloads", cfg.DownloadConcurrency, cfg.AcquireTimeout),
		Workers:   NewGate("workers", cfg.WorkerPoolSize, cfg.AcquireTimeout),
	}
}

// Usage is a point-in-time view of slot usage.
type Usage struct {
	Files     int `json:"files"`
	Downloads int `json:"downloads"`
	Workers   int `json:"workers"`
}

// Usage reports how many slots each gate currently holds.
func (g *Governor) Usage() Usage {
	return Usage{
		Files:     g.Files.InUse(),
		Downloads: g.Downloads.InUse(),
		Workers:   g.Workers.InUse(),
	}
}
