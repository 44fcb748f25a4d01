package parse

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamevault/internal/eco"
	"github.com/freeeve/gamevault/internal/game"
	"github.com/freeeve/gamevault/internal/governor"
)

// ChunkResult is the outcome of parsing one chunk.
type ChunkResult struct {
	Records   []game.Record
	Malformed []*MalformedError
}

// Parser turns PGN text into records. A Parser is owned by one worker and
// carries no state between chunks.
type Parser struct {
	openings *eco.Database
}

// NewParser creates a parser. openings may be nil to disable ECO backfill.
func NewParser(openings *eco.Database) *Parser {
	return &Parser{openings: openings}
}

// ParseChunk parses every game in chunk. Malformed games are reported
// individually and do not affect their neighbours. Record offsets are
// relative to the start of chunk.
func (p *Parser) ParseChunk(chunk []byte) ChunkResult {
	var res ChunkResult
	scanGames(chunk, func(g scannedGame) {
		rec, bad := buildRecord(&g, p.openings)
		if bad != nil {
			res.Malformed = append(res.Malformed, bad)
			return
		}
		res.Records = append(res.Records, rec)
	})
	return res
}

// ParseChunk parses a chunk without ECO backfill.
func ParseChunk(chunk []byte) ChunkResult {
	return NewParser(nil).ParseChunk(chunk)
}

// PoolConfig configures the parse worker pool.
type PoolConfig struct {
	Workers int            // Number of parse workers (default NumCPU-1, min 1)
	ECO     *eco.Database  // Optional opening database for ECO backfill
	Gate    *governor.Gate // Optional process-wide bound on concurrent parses
	Logger  zerolog.Logger // Logger
}

// Pool parses chunks on a fixed number of workers. Workers only compute;
// they do no I/O and exchange plain values with the caller.
type Pool struct {
	cfg PoolConfig
	log zerolog.Logger
}

// ErrNoWorkers is returned when the pool is configured with a negative size.
var ErrNoWorkers = errors.New("parse pool needs at least one worker")

// NewPool creates a parse pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Workers < 0 {
		return nil, ErrNoWorkers
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers()
	}
	return &Pool{cfg: cfg, log: cfg.Logger}, nil
}

// DefaultWorkers is one less than the number of CPUs, and at least one.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Workers returns the configured pool size.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Result aggregates the chunk results of one ParseAll call.
type Result struct {
	Records   []game.Record
	Malformed []*MalformedError
	Chunks    int
}

// ParseAll parses chunks concurrently and gathers results in completion
// order. chunks are consecutive pieces of one text and record offsets are
// relative to the start of the first. If ctx is cancelled, chunks already being parsed run to completion
// but their results are discarded and ctx.Err() is returned. A chunk that
// cannot get a worker slot fails the whole call.
func (p *Pool) ParseAll(ctx context.Context, chunks [][]byte) (Result, error) {
	var out Result
	if len(chunks) == 0 {
		return out, nil
	}

	numWorkers := p.cfg.Workers
	if numWorkers > len(chunks) {
		numWorkers = len(chunks)
	}

	type job struct {
		base int64
		data []byte
	}
	chunkChan := make(chan job, len(chunks))
	resultChan := make(chan ChunkResult, len(chunks))

	var (
		wg      sync.WaitGroup
		gateErr error
		errOnce sync.Once
	)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			parser := NewParser(p.cfg.ECO)
			for j := range chunkChan {
				if ctx.Err() != nil {
					continue
				}
				var res ChunkResult
				err := p.cfg.Gate.Do(ctx, func() error {
					res = parser.ParseChunk(j.data)
					return nil
				})
				if err != nil {
					errOnce.Do(func() { gateErr = err })
					continue
				}
				for i := range res.Records {
					res.Records[i].Offset += j.base
				}
				p.log.Debug().
					Int("worker", workerID).
					Int("games", len(res.Records)).
					Int("malformed", len(res.Malformed)).
					Msg("chunk parsed")
				resultChan <- res
			}
		}(i)
	}

	var base int64
	for _, c := range chunks {
		chunkChan <- job{base: base, data: c}
		base += int64(len(c))
	}
	close(chunkChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		out.Chunks++
		out.Records = append(out.Records, res.Records...)
		out.Malformed = append(out.Malformed, res.Malformed...)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if gateErr != nil {
		return Result{}, fmt.Errorf("parse chunk: %w", gateErr)
	}

	for _, m := range out.Malformed {
		p.log.Debug().
			Int("line", m.Line).
			Str("white", m.White).
			Str("black", m.Black).
			Str("reason", m.Reason).
			Msg("skipped malformed game")
	}
	return out, nil
}
