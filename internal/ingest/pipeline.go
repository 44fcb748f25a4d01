// Package ingest drives archives through read, chunk, parse, resolve,
// encode and persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/gamevault/internal/chunk"
	"github.com/freeeve/gamevault/internal/codec"
	"github.com/freeeve/gamevault/internal/game"
	"github.com/freeeve/gamevault/internal/governor"
	"github.com/freeeve/gamevault/internal/identity"
	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/parse"
	"github.com/freeeve/gamevault/internal/persist"
	"github.com/freeeve/gamevault/internal/retry"
	"github.com/freeeve/gamevault/internal/source"
	"github.com/freeeve/gamevault/internal/store"
)

// NameResolver resolves player names to ids.
type NameResolver interface {
	ResolveBatch(ctx context.Context, names []string) (map[string]uint32, identity.Failures)
}

// BatchWriter persists encoded rows.
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []store.GameRow) persist.Outcome
}

// Config configures a Pipeline.
type Config struct {
	ChunkSize    int            // Approximate chunk size in bytes (default 4MB)
	BatchChunks  int            // Chunks parsed per resolve/persist batch (default 2x workers)
	TempDir      string         // Download directory (default os.TempDir)
	Retry        retry.Policy   // Download retry policy (default R=5, 100ms, x2)
	ProgressTick time.Duration  // Per-file progress log interval (default 10s)
	Logger       zerolog.Logger // Logger
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Governor *governor.Governor
	Pool     *parse.Pool
	Resolver NameResolver
	Writer   BatchWriter
	Codec    *codec.Codec     // default codec.New(codec.DefaultCacheSize)
	Metrics  *metrics.Metrics // default metrics.New()
}

// Pipeline processes archives. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	gov      *governor.Governor
	pool     *parse.Pool
	resolver NameResolver
	writer   BatchWriter
	codec    *codec.Codec
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// ErrMissingDependency is returned by New when a core collaborator is nil.
var ErrMissingDependency = errors.New("ingest: missing dependency")

// New creates a pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Pool == nil:
		return nil, fmt.Errorf("%w: parse pool", ErrMissingDependency)
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: resolver", ErrMissingDependency)
	case deps.Writer == nil:
		return nil, fmt.Errorf("%w: writer", ErrMissingDependency)
	}
	if deps.Governor == nil {
		deps.Governor = governor.New(governor.Config{WorkerPoolSize: deps.Pool.Workers()})
	}
	if deps.Codec == nil {
		deps.Codec = codec.New(codec.DefaultCacheSize)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.BatchChunks <= 0 {
		cfg.BatchChunks = 2 * deps.Pool.Workers()
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Default()
	}
	if cfg.ProgressTick == 0 {
		cfg.ProgressTick = 10 * time.Second
	}
	return &Pipeline{
		cfg:      cfg,
		gov:      deps.Governor,
		pool:     deps.Pool,
		resolver: deps.Resolver,
		writer:   deps.Writer,
		codec:    deps.Codec,
		metrics:  deps.Metrics,
		log:      cfg.Logger,
	}, nil
}

// Metrics returns the pipeline's counters.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// ProcessFile ingests one local .pgn or .pgn.zst file. The whole ingest,
// from read through persist, holds one Files slot. The returned error is
// non-nil only when the file could not be read or ctx was cancelled; game
// level problems are counted in the outcome.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (FileOutcome, error) {
	return p.processFile(ctx, path, filepath.Base(path))
}

// processFile ingests path, recording name as the games' source.
func (p *Pipeline) processFile(ctx context.Context, path, name string) (FileOutcome, error) {
	out := FileOutcome{Path: path, State: StateFetched}
	start := time.Now()

	var batchErr error
	err := p.gov.Files.Do(ctx, func() error {
		p.log.Info().Str("file", name).Msg("starting file ingest")
		data, n, err := source.ReadFile(path)
		if err != nil {
			return err
		}
		out.Bytes = n
		out.advance(StateRead)
		p.metrics.AddBytesRead(n)

		batchErr = p.ingest(ctx, name, data, &out, start)
		return batchErr
	})
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Err = err
		if ctx.Err() != nil {
			out.Err = ctx.Err()
			return out, out.Err
		}
		if batchErr == nil {
			out.State = StateFailed
			p.metrics.FileFailed()
			p.log.Error().Err(err).Str("file", name).Msg("ingest failed")
		}
		return out, err
	}

	p.metrics.FileProcessed()
	p.log.Info().
		Str("file", name).
		Int("games", out.Processed).
		Int("failed", out.Failed).
		Int("malformed", out.Malformed).
		Int("retries", out.Retries).
		Int64("bytes", out.Bytes).
		Dur("elapsed", out.Elapsed).
		Float64("games_per_sec", float64(out.Processed)/out.Elapsed.Seconds()).
		Msg("file ingest complete")
	return out, nil
}

// ingest chunks data and runs it through the batches.
func (p *Pipeline) ingest(ctx context.Context, name string, data []byte, out *FileOutcome, start time.Time) error {
	chunks := chunk.Split(data, p.cfg.ChunkSize)
	out.Chunks = len(chunks)
	out.advance(StateChunked)

	var base int64
	lastLog := time.Now()
	for lo := 0; lo < len(chunks); lo += p.cfg.BatchChunks {
		hi := min(lo+p.cfg.BatchChunks, len(chunks))
		if err := p.processBatch(ctx, name, base, chunks[lo:hi], out); err != nil {
			return err
		}
		for _, c := range chunks[lo:hi] {
			base += int64(len(c))
		}

		if time.Since(lastLog) > p.cfg.ProgressTick {
			elapsed := time.Since(start)
			p.log.Info().
				Str("file", name).
				Int("chunks_done", hi).
				Int("chunks", len(chunks)).
				Int("games", out.Processed).
				Int("failed", out.Failed).
				Float64("games_per_sec", float64(out.Processed)/elapsed.Seconds()).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}

	// A file without games still walks every stage.
	out.advance(StatePersisted)
	out.advance(StateDone)
	return nil
}

// processBatch parses, resolves, encodes and persists one group of chunks.
// base is the offset of the first chunk within the file.
func (p *Pipeline) processBatch(ctx context.Context, name string, base int64, chunks [][]byte, out *FileOutcome) error {
	start := time.Now()

	parsed, err := p.pool.ParseAll(ctx, chunks)
	if err != nil {
		return err
	}
	out.advance(StateParsed)
	out.Malformed += len(parsed.Malformed)
	failed := len(parsed.Malformed)

	names := make([]string, 0, 2*len(parsed.Records))
	for i := range parsed.Records {
		names = append(names, parsed.Records[i].White, parsed.Records[i].Black)
	}
	ids, failures := p.resolver.ResolveBatch(ctx, names)
	if err := ctx.Err(); err != nil {
		return err
	}
	out.advance(StateResolved)
	for n, ferr := range failures {
		p.log.Warn().Err(ferr).Str("file", name).Str("player", n).Msg("player unresolved, dropping games")
	}

	rows := make([]store.GameRow, 0, len(parsed.Records))
	for i := range parsed.Records {
		rec := &parsed.Records[i]
		rec.Offset += base
		row, ok := p.encode(rec, ids, name)
		if !ok {
			failed++
			continue
		}
		rows = append(rows, row)
	}

	written := p.writer.WriteBatch(ctx, rows)
	if err := ctx.Err(); err != nil {
		return err
	}
	out.advance(StatePersisted)
	failed += written.Failed

	out.Processed += written.Succeeded
	out.Failed += failed
	out.Retries += written.Retries
	p.metrics.AddGamesProcessed(written.Succeeded)
	p.metrics.AddGamesFailed(failed)
	p.metrics.ObserveBatch(written.Succeeded, time.Since(start))
	return nil
}

func (p *Pipeline) encode(rec *game.Record, ids map[string]uint32, file string) (store.GameRow, bool) {
	whiteID, okW := ids[rec.White]
	blackID, okB := ids[rec.Black]
	if !okW || !okB {
		return store.GameRow{}, false
	}
	data, err := p.codec.Encode(rec.WithIDs(whiteID, blackID))
	if err != nil {
		p.log.Debug().Err(err).
			Str("file", file).
			Str("white", rec.White).
			Str("black", rec.Black).
			Msg("game not encodable")
		return store.GameRow{}, false
	}
	return store.GameRow{WhiteID: whiteID, BlackID: blackID, Data: data, Source: file, Offset: rec.Offset}, true
}

// ProcessFiles ingests paths concurrently, up to the Files gate size at a
// time. Outcomes are returned in input order. The error is ctx.Err() if
// the run was cancelled; per-file failures are in the outcomes.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) ([]FileOutcome, error) {
	outcomes := make([]FileOutcome, len(paths))
	var g errgroup.Group
	g.SetLimit(max(p.gov.Files.Size(), 1))
	for i, path := range paths {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = FileOutcome{Path: path, Err: ctx.Err()}
				return nil
			}
			outcomes[i], _ = p.ProcessFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, ctx.Err()
}
