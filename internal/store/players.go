package store

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
)

// The no-op update makes RETURNING yield the existing id on conflict, so
// concurrent resolvers of one name always agree without a read-then-write.
const upsertPlayerSQL = `INSERT INTO players (name) VALUES (?)
	ON CONFLICT (name) DO UPDATE SET name = excluded.name
	RETURNING id`

// UpsertPlayer returns the id for name, creating the player if needed.
func (s *DB) UpsertPlayer(ctx context.Context, name string) (uint32, error) {
	var id int64
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(upsertPlayerSQL), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert player %q: %w", name, err)
	}
	if id <= 0 || id > math.MaxUint32 {
		return 0, fmt.Errorf("player id %d out of range", id)
	}
	return uint32(id), nil
}

// PlayerNames maps ids to names. Unknown ids are absent from the result.
func (s *DB) PlayerNames(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	out := make(map[uint32]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In("SELECT id, name FROM players WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("player names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p struct {
			ID   int64  `db:"id"`
			Name string `db:"name"`
		}
		if err := rows.StructScan(&p); err != nil {
			return nil, err
		}
		out[uint32(p.ID)] = p.Name
	}
	return out, rows.Err()
}
