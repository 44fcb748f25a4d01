package parse

import (
	"bytes"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/gamevault/internal/chunk"
)

// scannedGame is one game as read by the PGN scanner. Tags and Moves are
// owned by the scanner and only valid until its next Scan.
type scannedGame struct {
	offset int // byte offset of the game within its chunk
	line   int // 1-based line of the game's first line within its chunk
	tags   map[string]string
	moves  []pgn.Mv
	err    error // scan failure; tags then come from the tag section alone
}

// scanGames calls fn for every game in data, in order. One scanner reads the
// whole chunk. If it fails on a game, or drifts off the game boundaries, that
// game is scanned again on its own and a new scanner resumes at the next one,
// so a bad game never affects its neighbours.
func scanGames(data []byte, fn func(g scannedGame)) {
	starts := chunk.Starts(data)
	if len(starts) == 0 || starts[0] > 0 && len(bytes.TrimSpace(data[:starts[0]])) > 0 {
		if len(bytes.TrimSpace(data)) == 0 {
			return
		}
		starts = append([]int{0}, starts...)
	}

	var sc *pgn.PGNScanner
	line, lineOff := 1, 0
	for k, off := range starts {
		end := len(data)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		seg := data[off:end]
		line += bytes.Count(data[lineOff:off], []byte{'\n'})
		lineOff = off

		if sc == nil {
			sc = pgn.NewPGNScanner(bytes.NewReader(data[off:]))
		}
		g, err := sc.Scan()
		if err != nil || len(g.Tags) == 0 && chunk.IsGameStart(seg) {
			g, err = pgn.NewPGNScanner(bytes.NewReader(seg)).Scan()
			sc = nil
		}

		sg := scannedGame{offset: off, line: line, err: err}
		if err != nil {
			sg.tags = tagSection(seg)
		} else {
			sg.tags, sg.moves = g.Tags, g.Moves
		}
		fn(sg)
	}
}

// tagSection reads the tag pairs of a game whose movetext failed to scan.
func tagSection(seg []byte) map[string]string {
	end := 0
	for end < len(seg) {
		next := len(seg)
		if i := bytes.IndexByte(seg[end:], '\n'); i >= 0 {
			next = end + i + 1
		}
		line := bytes.TrimSpace(seg[end:next])
		if len(line) > 0 && line[0] != '[' {
			break
		}
		end = next
	}
	g, err := pgn.NewPGNScanner(bytes.NewReader(seg[:end])).Scan()
	if err != nil {
		return nil
	}
	return g.Tags
}
