package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/gamevault/internal/eco"
	"github.com/freeeve/gamevault/internal/game"
)

// MalformedError describes a game that was skipped. It never fails the
// chunk it came from.
type MalformedError struct {
	Line   int    // line of the game's first line within its chunk
	White  string // may be empty
	Black  string // may be empty
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed game at line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed game at line %d: %s", e.Line, e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ErrMalformed matches every *MalformedError via errors.Is.
var ErrMalformed = errors.New("malformed game record")

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(g *scannedGame, reason string, err error) *MalformedError {
	return &MalformedError{
		Line:   g.line,
		White:  g.tags["White"],
		Black:  g.tags["Black"],
		Reason: reason,
		Err:    err,
	}
}

func nonStandardStart(tags map[string]string) bool {
	return tags["SetUp"] == "1" || tags["FEN"] != ""
}

// buildRecord validates a scanned game and converts its moves to UCI.
func buildRecord(g *scannedGame, openings *eco.Database) (game.Record, *MalformedError) {
	if g.err != nil {
		if nonStandardStart(g.tags) {
			return game.Record{}, malformed(g, "non-standard start position", g.err)
		}
		return game.Record{}, malformed(g, "unparsable movetext", g.err)
	}

	white := strings.TrimSpace(g.tags["White"])
	black := strings.TrimSpace(g.tags["Black"])
	if white == "" {
		return game.Record{}, malformed(g, "missing White tag", nil)
	}
	if black == "" {
		return game.Record{}, malformed(g, "missing Black tag", nil)
	}

	resultTag, ok := g.tags["Result"]
	if !ok {
		return game.Record{}, malformed(g, "missing Result tag", nil)
	}
	result, ok := game.ParseResult(strings.TrimSpace(resultTag))
	if !ok {
		return game.Record{}, malformed(g, fmt.Sprintf("invalid Result %q", resultTag), nil)
	}

	ecoCode := strings.TrimSpace(g.tags["ECO"])
	if ecoCode == "?" {
		ecoCode = ""
	}
	if ecoCode != "" && !game.ValidECO(ecoCode) {
		return game.Record{}, malformed(g, fmt.Sprintf("invalid ECO %q", ecoCode), nil)
	}

	if nonStandardStart(g.tags) {
		return game.Record{}, malformed(g, "non-standard start position", nil)
	}
	if len(g.moves) > game.MaxMoves {
		return game.Record{}, malformed(g, fmt.Sprintf("%d plies exceeds %d", len(g.moves), game.MaxMoves), nil)
	}

	moves := make([]string, len(g.moves))
	for i, mv := range g.moves {
		moves[i] = mv.String()
	}

	if ecoCode == "" && openings != nil {
		tracker := openings.NewTracker()
		pos := pgn.NewStartingPosition()
		for i, mv := range g.moves {
			if err := pgn.ApplyMove(pos, mv); err != nil {
				return game.Record{}, malformed(g, fmt.Sprintf("ply %d: illegal move %s", i+1, moves[i]), err)
			}
			tracker.Observe(pos)
		}
		ecoCode = tracker.ECO()
	}

	return game.Record{
		White:    white,
		Black:    black,
		WhiteElo: parseRating(g.tags["WhiteElo"]),
		BlackElo: parseRating(g.tags["BlackElo"]),
		Date:     parseDate(g.tags["Date"]),
		Result:   result,
		ECO:      ecoCode,
		Moves:    moves,
		Offset:   int64(g.offset),
	}, nil
}

func parseRating(s string) uint16 {
	s = strings.TrimSpace(s)
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, err := strconv.Atoi(s)
	if err != nil || r < 0 {
		return 0
	}
	if r > 65535 {
		return 65535
	}
	return uint16(r)
}

// parseDate reads "YYYY.MM.DD" with "?" for unknown parts. Parts that are
// unparsable or out of range become unknown.
func parseDate(s string) game.Date {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return game.Date{}
	}
	field := func(p string, lo, hi int) int {
		n, err := strconv.Atoi(p)
		if err != nil || n < lo || n > hi {
			return 0
		}
		return n
	}
	return game.Date{
		Year:  field(parts[0], 1901, 2155),
		Month: field(parts[1], 1, 12),
		Day:   field(parts[2], 1, 31),
	}
}
