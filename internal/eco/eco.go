// Package eco provides ECO (Encyclopedia of Chess Openings) classification
// for games whose PGN lacks an ECO tag.
package eco

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/gamevault/internal/game"
)

// Opening represents an ECO opening classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database holds ECO opening data indexed by position. It is read-only once
// loaded and may be shared between goroutines.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
	maxPly     int
	count      int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]Opening),
	}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.Load(f)
}

// Load reads "eco<TAB>name<TAB>pgn" lines. Lines with a malformed code or
// unplayable moves are skipped.
func (db *Database) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 || !game.ValidECO(parts[0]) {
			continue
		}

		pos := pgn.NewStartingPosition()
		plies, err := applyMoves(pos, parts[2])
		if err != nil {
			continue
		}
		if plies > db.maxPly {
			db.maxPly = plies
		}

		db.byPosition[pos.Pack()] = Opening{ECO: parts[0], Name: parts[1]}
		db.count++
	}

	return scanner.Err()
}

// applyMoves parses and applies PGN moves like "1. e4 e5 2. Nf3 Nc6"
func applyMoves(pos *pgn.GameState, pgnMoves string) (int, error) {
	cleaned := moveNumberRegex.ReplaceAllString(pgnMoves, "")
	plies := 0

	for _, san := range strings.Fields(cleaned) {
		if san[0] == '$' || san[0] == '{' {
			continue
		}
		san = strings.TrimRight(san, "+#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return plies, fmt.Errorf("parse %q: %w", san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return plies, fmt.Errorf("apply %q: %w", san, err)
		}
		plies++
	}
	return plies, nil
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(pos pgn.PackedPosition) *Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// MaxPly is the deepest ply at which any loaded opening can match.
func (db *Database) MaxPly() int {
	return db.maxPly
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}

// Tracker follows one game's positions and remembers the deepest opening
// reached. It is owned by a single parser.
type Tracker struct {
	db   *Database
	ply  int
	best *Opening
}

// NewTracker starts classification for a new game. A nil Database yields a
// tracker that never matches.
func (db *Database) NewTracker() *Tracker {
	return &Tracker{db: db}
}

// Observe records the position reached after the next ply.
func (t *Tracker) Observe(gs *pgn.GameState) {
	if t.db == nil {
		return
	}
	t.ply++
	if t.ply > t.db.maxPly {
		return
	}
	if o := t.db.Lookup(gs.Pack()); o != nil {
		t.best = o
	}
}

// ECO returns the deepest matching code, or "" when nothing matched.
func (t *Tracker) ECO() string {
	if t.best == nil {
		return ""
	}
	return t.best.ECO
}
