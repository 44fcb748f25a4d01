// Package metrics collects pipeline counters. Nothing in the pipeline reads
// them back to make decisions.
package metrics

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FilesProcessed uint64  `json:"files_processed"`
	FilesFailed    uint64  `json:"files_failed"`
	GamesProcessed uint64  `json:"games_processed"`
	GamesFailed    uint64  `json:"games_failed"`
	StoreOps       uint64  `json:"store_ops"`
	StoreRetries   uint64  `json:"store_retries"`
	BytesRead      uint64  `json:"bytes_read"`
	GamesPerSec    float64 `json:"games_per_sec"` // last completed batch
	Uptime         string  `json:"uptime"`
}

// Metrics holds monotonic counters updated with atomics. Updates on a nil
// *Metrics are no-ops.
type Metrics struct {
	filesProcessed uint64
	filesFailed    uint64
	gamesProcessed uint64
	gamesFailed    uint64
	storeOps       uint64
	storeRetries   uint64
	bytesRead      uint64

	// float64 bits of the last batch throughput
	throughput uint64

	start time.Time
}

// New creates a zeroed collector.
func New() *Metrics {
	return &Metrics{start: time.Now()}
}

// FileProcessed counts a file that reached Done.
func (m *Metrics) FileProcessed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.filesProcessed, 1)
}

// FileFailed counts a file that ended in Failed.
func (m *Metrics) FileFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.filesFailed, 1)
}

// AddGamesProcessed adds persisted games.
func (m *Metrics) AddGamesProcessed(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.gamesProcessed, uint64(n))
}

// AddGamesFailed adds games dropped for any reason.
func (m *Metrics) AddGamesFailed(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.gamesFailed, uint64(n))
}

// AddStoreOps adds completed store round trips.
func (m *Metrics) AddStoreOps(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.storeOps, uint64(n))
}

// AddStoreRetries adds store retries.
func (m *Metrics) AddStoreRetries(n int) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.storeRetries, uint64(n))
}

// AddBytesRead adds archive bytes read.
func (m *Metrics) AddBytesRead(n int64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.bytesRead, uint64(n))
}

// ObserveBatch records the throughput of a completed batch.
func (m *Metrics) ObserveBatch(games int, elapsed time.Duration) {
	if m == nil || elapsed <= 0 {
		return
	}
	gps := float64(games) / elapsed.Seconds()
	atomic.StoreUint64(&m.throughput, math.Float64bits(gps))
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FilesProcessed: atomic.LoadUint64(&m.filesProcessed),
		FilesFailed:    atomic.LoadUint64(&m.filesFailed),
		GamesProcessed: atomic.LoadUint64(&m.gamesProcessed),
		GamesFailed:    atomic.LoadUint64(&m.gamesFailed),
		StoreOps:       atomic.LoadUint64(&m.storeOps),
		StoreRetries:   atomic.LoadUint64(&m.storeRetries),
		BytesRead:      atomic.LoadUint64(&m.bytesRead),
		GamesPerSec:    math.Float64frombits(atomic.LoadUint64(&m.throughput)),
		Uptime:         time.Since(m.start).Round(time.Second).String(),
	}
}

// Report logs a snapshot every interval until ctx is done.
func (m *Metrics) Report(ctx context.Context, log zerolog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Log(log)
		}
	}
}

// Log writes one snapshot line.
func (m *Metrics) Log(log zerolog.Logger) {
	s := m.Snapshot()
	log.Info().
		Uint64("files", s.FilesProcessed).
		Uint64("files_failed", s.FilesFailed).
		Uint64("games", s.GamesProcessed).
		Uint64("games_failed", s.GamesFailed).
		Uint64("store_ops", s.StoreOps).
		Uint64("store_retries", s.StoreRetries).
		Uint64("bytes_read", s.BytesRead).
		Float64("games_per_sec", s.GamesPerSec).
		Msg("ingest progress")
}

// WriteFile saves a snapshot as JSON.
func (m *Metrics) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file then rename for atomicity
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}
