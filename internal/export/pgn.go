// Package export renders stored games back to PGN.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	chess "github.com/corentings/chess/v2"

	"github.com/freeeve/gamevault/internal/game"
)

const lineWidth = 80

// Players carries the names behind a game's ids.
type Players struct {
	White string
	Black string
}

// SAN replays UCI moves from the starting position and returns them in
// standard algebraic notation.
func SAN(uciMoves []string) ([]string, error) {
	g := chess.NewGame()
	out := make([]string, 0, len(uciMoves))
	for i, uci := range uciMoves {
		pos := g.Position()
		mv, err := chess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			return nil, fmt.Errorf("ply %d: %q: %w", i+1, uci, err)
		}
		out = append(out, chess.AlgebraicNotation{}.Encode(pos, mv))
		if err := g.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("ply %d: %q: %w", i+1, uci, err)
		}
	}
	return out, nil
}

// WriteGame writes one game as PGN: the seven tag roster, the optional
// Elo and ECO tags, and wrapped movetext ending in the result.
func WriteGame(w io.Writer, g game.Game, p Players) error {
	sans, err := SAN(g.Moves)
	if err != nil {
		return err
	}

	var b strings.Builder
	tag := func(name, value string) {
		fmt.Fprintf(&b, "[%s \"%s\"]\n", name, escapeTag(value))
	}
	tag("Event", "?")
	tag("Site", "?")
	tag("Date", g.Date.String())
	tag("Round", "?")
	tag("White", orUnknown(p.White))
	tag("Black", orUnknown(p.Black))
	tag("Result", g.Result.String())
	if g.WhiteElo > 0 {
		tag("WhiteElo", strconv.Itoa(int(g.WhiteElo)))
	}
	if g.BlackElo > 0 {
		tag("BlackElo", strconv.Itoa(int(g.BlackElo)))
	}
	if g.ECO != "" {
		tag("ECO", g.ECO)
	}
	b.WriteByte('\n')

	lineLen := 0
	emit := func(tok string) {
		if lineLen > 0 && lineLen+1+len(tok) > lineWidth {
			b.WriteByte('\n')
			lineLen = 0
		} else if lineLen > 0 {
			b.WriteByte(' ')
			lineLen++
		}
		b.WriteString(tok)
		lineLen += len(tok)
	}
	for i, san := range sans {
		if i%2 == 0 {
			emit(strconv.Itoa(i/2+1) + ". " + san)
			continue
		}
		emit(san)
	}
	emit(g.Result.String())
	b.WriteString("\n\n")

	_, err = io.WriteString(w, b.String())
	return err
}

func escapeTag(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
