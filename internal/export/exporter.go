package export

import (
	"bufio"
	"context"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/freeeve/gamevault/internal/codec"
	"github.com/freeeve/gamevault/internal/store"
)

// GameStore is the read side of *store.DB.
type GameStore interface {
	IterateGames(ctx context.Context, afterID int64, limit int, fn func(store.StoredGame) error) error
	PlayerNames(ctx context.Context, ids []uint32) (map[uint32]string, error)
}

// Config configures an Exporter.
type Config struct {
	PageSize      int            // Games per name lookup (default 500)
	NameCacheSize int            // Cached id→name entries (default 50000)
	SkipCorrupt   bool           // Log and skip rows that fail to decode
	Logger        zerolog.Logger // Logger
}

// Exporter streams stored games as PGN.
type Exporter struct {
	cfg   Config
	st    GameStore
	codec *codec.Codec
	names *lru.Cache[uint32, string]
	log   zerolog.Logger
}

// Stats reports an export run.
type Stats struct {
	Games   int
	Skipped int
	LastID  int64
}

// New creates an exporter.
func New(st GameStore, cfg Config) (*Exporter, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.NameCacheSize <= 0 {
		cfg.NameCacheSize = 50_000
	}
	names, err := lru.New[uint32, string](cfg.NameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Exporter{
		cfg:   cfg,
		st:    st,
		codec: codec.New(codec.DefaultCacheSize),
		names: names,
		log:   cfg.Logger,
	}, nil
}

// Export writes games with id > afterID, up to limit (0 = all), to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, afterID int64, limit int) (Stats, error) {
	var stats Stats
	bw := bufio.NewWriterSize(w, 1<<20)
	page := make([]store.StoredGame, 0, e.cfg.PageSize)

	flush := func() error {
		if err := e.resolveNames(ctx, page); err != nil {
			return err
		}
		for _, row := range page {
			if err := e.writeRow(bw, row); err != nil {
				if !e.cfg.SkipCorrupt {
					return fmt.Errorf("game %d: %w", row.ID, err)
				}
				e.log.Warn().Err(err).Int64("id", row.ID).Msg("skipping corrupt game")
				stats.Skipped++
				continue
			}
			stats.Games++
		}
		page = page[:0]
		return nil
	}

	err := e.st.IterateGames(ctx, afterID, limit, func(g store.StoredGame) error {
		page = append(page, g)
		stats.LastID = g.ID
		if len(page) == e.cfg.PageSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, bw.Flush()
}

func (e *Exporter) writeRow(w io.Writer, row store.StoredGame) error {
	g, err := e.codec.Decode(row.Data)
	if err != nil {
		return err
	}
	white, _ := e.names.Get(g.WhiteID)
	black, _ := e.names.Get(g.BlackID)
	return WriteGame(w, g, Players{White: white, Black: black})
}

// resolveNames loads the names of ids in page that are not cached.
func (e *Exporter) resolveNames(ctx context.Context, page []store.StoredGame) error {
	var missing []uint32
	seen := map[uint32]bool{}
	for _, row := range page {
		for _, id := range []uint32{uint32(row.WhiteID), uint32(row.BlackID)} {
			if seen[id] || e.names.Contains(id) {
				continue
			}
			seen[id] = true
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names, err := e.st.PlayerNames(ctx, missing)
	if err != nil {
		return err
	}
	for id, name := range names {
		e.names.Add(id, name)
	}
	return nil
}
