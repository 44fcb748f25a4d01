// Package persist writes encoded games in sub-batches with a two-tier
// retry: the whole sub-batch first, then row by row.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/retry"
	"github.com/freeeve/gamevault/internal/store"
)

// GameStore is the subset of *store.DB the writer needs.
type GameStore interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	InsertGamesBulk(ctx context.Context, tx *sqlx.Tx, rows []store.GameRow) (int64, error)
	InsertGame(ctx context.Context, tx *sqlx.Tx, row store.GameRow) error
	MaxOpenConns() int
}

// Config configures a Writer.
type Config struct {
	SubBatchSize int              // Rows per transaction (default 50)
	Concurrency  int              // Concurrent sub-batches (default store pool size)
	Retry        retry.Policy     // Retry policy for both tiers (default R=5, 100ms, x2)
	Metrics      *metrics.Metrics // Optional
	Logger       zerolog.Logger   // Logger
}

// Outcome summarizes a WriteBatch call. Succeeded+Failed equals the number
// of rows given.
type Outcome struct {
	Succeeded int
	Failed    int
	Retries   int
}

func (o *Outcome) add(other Outcome) {
	o.Succeeded += other.Succeeded
	o.Failed += other.Failed
	o.Retries += other.Retries
}

// Writer persists rows. It is safe for concurrent use.
type Writer struct {
	cfg Config
	st  GameStore
	log zerolog.Logger
}

// New creates a writer.
func New(st GameStore, cfg Config) *Writer {
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = st.MaxOpenConns()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Default()
	}
	return &Writer{cfg: cfg, st: st, log: cfg.Logger}
}

// retryable is every error except constraint violations and cancellation.
// Constraint violations are deterministic and go straight to the row tier.
func retryable(err error) bool {
	if store.IsConstraint(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// WriteBatch writes rows in sub-batches of SubBatchSize. Sub-batches run
// concurrently up to Concurrency, each on its own pooled connection. A
// failing row never fails its siblings.
func (w *Writer) WriteBatch(ctx context.Context, rows []store.GameRow) Outcome {
	var total Outcome
	if len(rows) == 0 {
		return total
	}
	start := time.Now()

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for lo := 0; lo < len(rows); lo += w.cfg.SubBatchSize {
		hi := min(lo+w.cfg.SubBatchSize, len(rows))
		sub := rows[lo:hi]
		g.Go(func() error {
			out := w.writeSubBatch(ctx, sub)
			mu.Lock()
			total.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.log.Debug().
		Int("rows", len(rows)).
		Int("succeeded", total.Succeeded).
		Int("failed", total.Failed).
		Int("retries", total.Retries).
		Dur("elapsed", time.Since(start)).
		Msg("batch written")
	return total
}

func (w *Writer) writeSubBatch(ctx context.Context, rows []store.GameRow) Outcome {
	var out Outcome

	retries, err := w.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		return w.st.WithTx(ctx, func(tx *sqlx.Tx) error {
			n, err := w.st.InsertGamesBulk(ctx, tx, rows)
			if err != nil {
				return err
			}
			if n != int64(len(rows)) {
				return fmt.Errorf("inserted %d of %d rows: %w", n, len(rows), store.ErrTransient)
			}
			return nil
		})
	}, retryable)
	w.record(retries)
	out.Retries += retries
	if err == nil {
		out.Succeeded = len(rows)
		return out
	}

	w.log.Debug().Err(err).
		Int("rows", len(rows)).
		Bool("constraint", store.IsConstraint(err)).
		Msg("sub-batch failed, falling back to per-row inserts")

	for _, row := range rows {
		if ctx.Err() != nil {
			out.Failed++
			continue
		}
		retries, err := w.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			return w.st.WithTx(ctx, func(tx *sqlx.Tx) error {
				return w.st.InsertGame(ctx, tx, row)
			})
		}, retryable)
		w.record(retries)
		out.Retries += retries
		if err != nil {
			w.log.Debug().Err(err).
				Uint32("white_id", row.WhiteID).
				Uint32("black_id", row.BlackID).
				Str("source", row.Source).
				Msg("row insert failed")
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	return out
}

func (w *Writer) record(retries int) {
	w.cfg.Metrics.AddStoreOps(retries + 1)
	w.cfg.Metrics.AddStoreRetries(retries)
}
