package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "games.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", URL: "x"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestUpsertPlayer_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, err := db.UpsertPlayer(ctx, "Carlsen, Magnus")
	require.NoError(t, err)
	b, err := db.UpsertPlayer(ctx, "Nakamura, Hikaru")
	require.NoError(t, err)
	again, err := db.UpsertPlayer(ctx, "Carlsen, Magnus")
	require.NoError(t, err)

	require.Equal(t, a, again)
	require.NotEqual(t, a, b)

	n, err := db.CountPlayers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	names, err := db.PlayerNames(ctx, []uint32{a, b, 999})
	require.NoError(t, err)
	require.Equal(t, map[uint32]string{a: "Carlsen, Magnus", b: "Nakamura, Hikaru"}, names)
}

func seedPlayers(t *testing.T, db *DB) (uint32, uint32) {
	t.Helper()
	w, err := db.UpsertPlayer(context.Background(), "White")
	require.NoError(t, err)
	b, err := db.UpsertPlayer(context.Background(), "Black")
	require.NoError(t, err)
	return w, b
}

func TestInsertGamesBulk(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w, b := seedPlayers(t, db)

	rows := make([]GameRow, 10)
	for i := range rows {
		rows[i] = GameRow{WhiteID: w, BlackID: b, Data: []byte(fmt.Sprintf("game-%d", i)), Source: "test.pgn"}
	}

	var inserted int64
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = db.InsertGamesBulk(ctx, tx, rows)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, inserted)

	st, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{Games: 10, Players: 2}, st)
}

func TestInsertGamesBulk_DuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w, b := seedPlayers(t, db)

	rows := []GameRow{
		{WhiteID: w, BlackID: b, Data: []byte("one")},
		{WhiteID: w, BlackID: b, Data: []byte("two")},
		{WhiteID: w, BlackID: b, Data: []byte("one")},
	}
	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := db.InsertGamesBulk(ctx, tx, rows)
		return err
	})
	require.Error(t, err)
	require.True(t, IsConstraint(err), "want constraint violation, got %v", err)
	require.False(t, IsTransient(err))

	n, err := db.CountGames(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertGame_UnknownPlayer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return db.InsertGame(ctx, tx, GameRow{WhiteID: 41, BlackID: 42, Data: []byte("x")})
	})
	require.True(t, IsConstraint(err), "foreign key violation should be a constraint error: %v", err)
}

func TestIterateGames(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w, b := seedPlayers(t, db)

	for i := 0; i < 7; i++ {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return db.InsertGame(ctx, tx, GameRow{WhiteID: w, BlackID: b, Data: []byte{byte(i)}})
		})
		require.NoError(t, err)
	}

	var got []byte
	require.NoError(t, db.IterateGames(ctx, 0, 0, func(g StoredGame) error {
		got = append(got, g.Data[0])
		return nil
	}))
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6}, got)

	got = got[:0]
	require.NoError(t, db.IterateGames(ctx, 2, 3, func(g StoredGame) error {
		got = append(got, g.Data[0])
		return nil
	}))
	require.Equal(t, []byte{2, 3, 4}, got)

	stop := errors.New("stop")
	err := db.IterateGames(ctx, 0, 0, func(StoredGame) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestDigest(t *testing.T) {
	require.Equal(t, Digest("a.pgn", 10, []byte("abc")), Digest("a.pgn", 10, []byte("abc")))
	require.NotEqual(t, Digest("a.pgn", 10, []byte("abc")), Digest("a.pgn", 10, []byte("abd")))
	require.NotEqual(t, Digest("a.pgn", 10, []byte("abc")), Digest("a.pgn", 11, []byte("abc")))
	require.NotEqual(t, Digest("a.pgn", 10, []byte("abc")), Digest("b.pgn", 10, []byte("abc")))
}

func TestInsertGamesBulk_SameEncodingDifferentOffsets(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	w, b := seedPlayers(t, db)

	rows := []GameRow{
		{WhiteID: w, BlackID: b, Data: []byte("same"), Source: "x.pgn", Offset: 0},
		{WhiteID: w, BlackID: b, Data: []byte("same"), Source: "x.pgn", Offset: 120},
	}
	require.NoError(t, db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := db.InsertGamesBulk(ctx, tx, rows)
		return err
	}))

	var offsets []int64
	require.NoError(t, db.IterateGames(ctx, 0, 0, func(g StoredGame) error {
		offsets = append(offsets, g.Offset)
		return nil
	}))
	require.Equal(t, []int64{0, 120}, offsets)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		transient  bool
		constraint bool
	}{
		{"nil", nil, false, false},
		{"plain", errors.New("boom"), false, false},
		{"sentinel transient", fmt.Errorf("x: %w", ErrTransient), true, false},
		{"pg unique", &pq.Error{Code: "23505"}, false, true},
		{"pg fk", &pq.Error{Code: "23503"}, false, true},
		{"pg serialization", &pq.Error{Code: "40001"}, true, false},
		{"pg deadlock", &pq.Error{Code: "40P01"}, true, false},
		{"pg connection", &pq.Error{Code: "08006"}, true, false},
		{"pg too many connections", &pq.Error{Code: "53300"}, true, false},
		{"pg admin shutdown", &pq.Error{Code: "57P01"}, true, false},
		{"pg syntax", &pq.Error{Code: "42601"}, false, false},
		{"wrapped pg unique", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
			if got := IsConstraint(tt.err); got != tt.constraint {
				t.Errorf("IsConstraint = %v, want %v", got, tt.constraint)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/x.db", 0)
	require.Contains(t, dsn, "file:/tmp/x.db?")
	require.Contains(t, dsn, "_txlock=immediate")
	require.Equal(t, "file:y.db?_pragma=foreign_keys(1)", sqliteDSN("file:y.db?_pragma=foreign_keys(1)", 0))
}
