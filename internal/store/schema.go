package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id         BIGSERIAL PRIMARY KEY,
		digest     TEXT NOT NULL UNIQUE,
		white_id   BIGINT NOT NULL REFERENCES players(id),
		black_id   BIGINT NOT NULL REFERENCES players(id),
		data       BYTEA NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		source_offset BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS games_white_id_idx ON games (white_id)`,
	`CREATE INDEX IF NOT EXISTS games_black_id_idx ON games (black_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		digest     TEXT NOT NULL UNIQUE,
		white_id   INTEGER NOT NULL REFERENCES players(id),
		black_id   INTEGER NOT NULL REFERENCES players(id),
		data       BLOB NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		source_offset INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS games_white_id_idx ON games (white_id)`,
	`CREATE INDEX IF NOT EXISTS games_black_id_idx ON games (black_id)`,
}

func (s *DB) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == Postgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
