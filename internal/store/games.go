package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GameRow is an encoded game ready to insert.
type GameRow struct {
	WhiteID uint32
	BlackID uint32
	Data    []byte // codec-encoded game
	Source  string // archive the game came from
	Offset  int64  // byte offset of the game within Source
}

// StoredGame is a persisted game row.
type StoredGame struct {
	ID      int64  `db:"id"`
	WhiteID int64  `db:"white_id"`
	BlackID int64  `db:"black_id"`
	Data    []byte `db:"data"`
	Source  string `db:"source"`
	Offset  int64  `db:"source_offset"`
}

// gameNamespace scopes game digests.
var gameNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/freeeve/gamevault/games"))

// Digest is the name-based UUID of a game: its source, its offset in that
// source and its encoding. Re-ingesting a source reproduces the same
// digests, which the games table keeps unique, while equal games found at
// different places stay distinct.
func Digest(source string, offset int64, data []byte) string {
	name := make([]byte, 0, len(source)+9+len(data))
	name = append(name, source...)
	name = append(name, 0)
	name = binary.BigEndian.AppendUint64(name, uint64(offset))
	name = append(name, data...)
	return uuid.NewSHA1(gameNamespace, name).String()
}

type gameInsert struct {
	Digest  string `db:"digest"`
	WhiteID int64  `db:"white_id"`
	BlackID int64  `db:"black_id"`
	Data    []byte `db:"data"`
	Source  string `db:"source"`
	Offset  int64  `db:"source_offset"`
}

func toInsert(r GameRow) gameInsert {
	return gameInsert{
		Digest:  Digest(r.Source, r.Offset, r.Data),
		WhiteID: int64(r.WhiteID),
		BlackID: int64(r.BlackID),
		Data:    r.Data,
		Source:  r.Source,
		Offset:  r.Offset,
	}
}

const insertGameSQL = `INSERT INTO games (digest, white_id, black_id, data, source, source_offset)
	VALUES (:digest, :white_id, :black_id, :data, :source, :source_offset)`

// InsertGamesBulk inserts rows with one multi-row statement inside tx. It
// returns the number of rows inserted. A duplicate game fails the whole
// statement with a constraint violation.
func (s *DB) InsertGamesBulk(ctx context.Context, tx *sqlx.Tx, rows []GameRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := make([]gameInsert, len(rows))
	for i, r := range rows {
		batch[i] = toInsert(r)
	}
	res, err := tx.NamedExecContext(ctx, insertGameSQL, batch)
	if err != nil {
		return 0, fmt.Errorf("insert %d games: %w", len(rows), err)
	}
	return res.RowsAffected()
}

// InsertGame inserts a single row inside tx.
func (s *DB) InsertGame(ctx context.Context, tx *sqlx.Tx, row GameRow) error {
	if _, err := tx.NamedExecContext(ctx, insertGameSQL, toInsert(row)); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

const iteratePageSize = 500

// IterateGames calls fn for every game with id > afterID in id order, up to
// limit games (0 = all). Iteration stops at the first error from fn.
func (s *DB) IterateGames(ctx context.Context, afterID int64, limit int, fn func(StoredGame) error) error {
	query := s.db.Rebind(`SELECT id, white_id, black_id, data, source, source_offset FROM games
		WHERE id > ? ORDER BY id LIMIT ?`)
	seen := 0
	for {
		page := iteratePageSize
		if limit > 0 && limit-seen < page {
			page = limit - seen
		}
		if page <= 0 {
			return nil
		}

		var games []StoredGame
		if err := s.db.SelectContext(ctx, &games, query, afterID, page); err != nil {
			return fmt.Errorf("iterate games: %w", err)
		}
		for _, g := range games {
			if err := fn(g); err != nil {
				return err
			}
			afterID = g.ID
		}
		seen += len(games)
		if len(games) < page {
			return nil
		}
	}
}
