// Package chunk splits PGN archive text into pieces that can be parsed
// independently.
package chunk

import "bytes"

// DefaultSize is the approximate chunk size used when none is given.
const DefaultSize = 4 << 20

// Split cuts text into chunks of roughly approxSize bytes. A chunk boundary
// is only placed in front of a line that starts a game record (see Starts),
// and only once the current chunk holds at least approxSize bytes, so no
// game is ever split.
//
// The returned chunks alias text; concatenating them yields text exactly.
// Empty input yields no chunks.
func Split(text []byte, approxSize int) [][]byte {
	if len(text) == 0 {
		return nil
	}
	if approxSize <= 0 {
		approxSize = DefaultSize
	}

	var chunks [][]byte
	start := 0
	scanStarts(text, func(off int) {
		if off-start >= approxSize {
			chunks = append(chunks, text[start:off])
			start = off
		}
	})
	return append(chunks, text[start:])
}

// Starts returns the offset of every game record in text. A game starts at
// a tag line ("[...") whose previous non-blank line was not a tag line. Lines
// inside a brace comment are movetext, whatever they start with.
func Starts(text []byte) []int {
	var offs []int
	scanStarts(text, func(off int) { offs = append(offs, off) })
	return offs
}

func scanStarts(text []byte, fn func(off int)) {
	prevTag := false
	inComment := false

	for pos := 0; pos < len(text); {
		next := len(text)
		if i := bytes.IndexByte(text[pos:], '\n'); i >= 0 {
			next = pos + i + 1
		}

		line := bytes.TrimSpace(text[pos:next])
		switch {
		case len(line) == 0:
		case inComment:
			inComment = commentOpen(line, true)
			prevTag = false
		case line[0] == '[':
			if !prevTag {
				fn(pos)
			}
			prevTag = true
		default:
			inComment = commentOpen(line, false)
			prevTag = false
		}
		pos = next
	}
}

// commentOpen reports whether a brace comment is open at the end of line,
// given whether one was open at its start. Comments do not nest.
func commentOpen(line []byte, open bool) bool {
	for _, c := range line {
		switch {
		case open && c == '}':
			open = false
		case !open && c == '{':
			open = true
		}
	}
	return open
}

// IsGameStart reports whether chunk begins with a tag line, which every chunk
// after the first does.
func IsGameStart(chunk []byte) bool {
	line := bytes.TrimLeft(chunk, " \t")
	return len(line) > 0 && line[0] == '['
}
