package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Dialect names a supported database/sql driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func init() {
	// modernc registers as "sqlite"; make sure sqlx binds '?' for it.
	sqlx.BindDriver(string(SQLite), sqlx.QUESTION)
}

// Config configures a store connection.
type Config struct {
	Driver       string         // "postgres" or "sqlite"
	URL          string         // DSN or file path
	MaxOpenConns int            // default 10 (postgres), 4 (sqlite)
	BusyTimeout  time.Duration  // sqlite only, default 10s
	Logger       zerolog.Logger // Logger
}

// DB is a pooled connection to the games database.
type DB struct {
	db      *sqlx.DB
	dialect Dialect
	maxOpen int
	log     zerolog.Logger
}

// Open connects, verifies the connection and creates the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect := Dialect(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if dialect == "postgresql" {
		dialect = Postgres
	}
	if dialect == "sqlite3" {
		dialect = SQLite
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database url is required")
	}

	dsn := cfg.URL
	switch dialect {
	case Postgres:
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 10
		}
	case SQLite:
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 4
		}
		if cfg.BusyTimeout == 0 {
			cfg.BusyTimeout = 10 * time.Second
		}
		dsn = sqliteDSN(cfg.URL, cfg.BusyTimeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	db, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	s := &DB{db: db, dialect: dialect, maxOpen: cfg.MaxOpenConns, log: cfg.Logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug().Str("driver", string(dialect)).Int("max_open_conns", cfg.MaxOpenConns).Msg("store opened")
	return s, nil
}

// sqliteDSN turns a path into a modernc DSN with per-connection pragmas.
// Transactions take the write lock up front so concurrent writers wait on
// busy_timeout instead of failing on lock upgrade.
func sqliteDSN(path string, busy time.Duration) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, sep, busy.Milliseconds())
}

// Close closes the pool.
func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dialect returns the connected dialect.
func (s *DB) Dialect() Dialect { return s.dialect }

// MaxOpenConns returns the pool size.
func (s *DB) MaxOpenConns() int { return s.maxOpen }

// isolation is read committed on PostgreSQL. SQLite transactions are always
// serializable and modernc rejects explicit levels.
func (s *DB) isolation() sql.IsolationLevel {
	if s.dialect == Postgres {
		return sql.LevelReadCommitted
	}
	return sql.LevelDefault
}

// WithTx runs fn in a transaction on one pooled connection. The transaction
// is committed if fn returns nil and rolled back otherwise.
func (s *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: s.isolation()})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountGames returns the number of stored games.
func (s *DB) CountGames(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM games")
	return n, err
}

// CountPlayers returns the number of stored players.
func (s *DB) CountPlayers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM players")
	return n, err
}
