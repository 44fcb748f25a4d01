// Package store persists players and encoded games in a relational database.
//
// Two dialects are supported through database/sql and sqlx:
//   - postgres (github.com/lib/pq): production
//   - sqlite (modernc.org/sqlite): local runs and tests
//
// Tables:
//   - players(id, name UNIQUE): one row per distinct player name
//   - games(id, digest UNIQUE, white_id, black_id, data, source, created_at):
//     append-only encoded games; digest is a name-based UUID of data
//
// Queries are written once with '?' placeholders and rebound per dialect.
// Errors are classified with IsTransient and IsConstraint so callers can
// decide between retrying, falling back and giving up.
package store
