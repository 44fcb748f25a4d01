package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Stats holds row counts for the game store.
type Stats struct {
	Games   int64 `json:"games"`
	Players int64 `json:"players"`
}

// ReadStore is the read side used by export.
type ReadStore interface {
	IterateGames(ctx context.Context, afterID int64, limit int, fn func(StoredGame) error) error
	PlayerNames(ctx context.Context, ids []uint32) (map[uint32]string, error)
	Stats(ctx context.Context) (Stats, error)
}

// WriteStore is the write side used by ingest.
type WriteStore interface {
	UpsertPlayer(ctx context.Context, name string) (uint32, error)
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	InsertGamesBulk(ctx context.Context, tx *sqlx.Tx, rows []GameRow) (int64, error)
	InsertGame(ctx context.Context, tx *sqlx.Tx, row GameRow) error
	MaxOpenConns() int
}

// Store is a full game store.
type Store interface {
	ReadStore
	WriteStore
	Close() error
}

var _ Store = (*DB)(nil)

// Stats returns the current row counts.
func (s *DB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Games, err = s.CountGames(ctx); err != nil {
		return st, err
	}
	if st.Players, err = s.CountPlayers(ctx); err != nil {
		return st, err
	}
	return st, nil
}
