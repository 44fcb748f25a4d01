package game

import (
	"fmt"
	"regexp"
)

// MaxMoves is the largest number of plies an encoded game can carry.
const MaxMoves = 65535

// Result is the outcome of a game.
type Result uint8

const (
	BlackWin Result = 0
	WhiteWin Result = 1
	Draw     Result = 2
	Unknown  Result = 3
)

// Valid reports whether r is one of the four defined results.
func (r Result) Valid() bool {
	return r <= Unknown
}

// String returns the PGN result token.
func (r Result) String() string {
	switch r {
	case WhiteWin:
		return "1-0"
	case BlackWin:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	case Unknown:
		return "*"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

// ParseResult maps a PGN Result tag value to a Result.
func ParseResult(s string) (Result, bool) {
	switch s {
	case "1-0":
		return WhiteWin, true
	case "0-1":
		return BlackWin, true
	case "1/2-1/2":
		return Draw, true
	case "*":
		return Unknown, true
	}
	return Unknown, false
}

// Date is a possibly partial calendar date. Zero fields are unknown.
type Date struct {
	Year  int
	Month int
	Day   int
}

// IsZero reports whether no part of the date is known.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats the date the way PGN Date tags do, with ?? for unknown parts.
func (d Date) String() string {
	y, m, dd := "????", "??", "??"
	if d.Year != 0 {
		y = fmt.Sprintf("%04d", d.Year)
	}
	if d.Month != 0 {
		m = fmt.Sprintf("%02d", d.Month)
	}
	if d.Day != 0 {
		dd = fmt.Sprintf("%02d", d.Day)
	}
	return y + "." + m + "." + dd
}

var ecoPattern = regexp.MustCompile(`^[A-E][0-9]{2}$`)

// ValidECO reports whether s is a well-formed ECO code such as "B12".
func ValidECO(s string) bool {
	return ecoPattern.MatchString(s)
}

// Record is a game as parsed from PGN, before player names are resolved.
type Record struct {
	White    string
	Black    string
	WhiteElo uint16 // 0 = unknown
	BlackElo uint16 // 0 = unknown
	Date     Date
	Result   Result
	ECO      string   // "" = absent
	Moves    []string // UCI tokens, e.g. "e2e4", "a7a8q"
	Offset   int64    // byte offset of the game in its source; not encoded
}

// Game is a Record whose player names have been replaced by store ids.
type Game struct {
	WhiteID  uint32
	BlackID  uint32
	WhiteElo uint16
	BlackElo uint16
	Date     Date
	Result   Result
	ECO      string
	Moves    []string
}

// WithIDs builds the Game for r using already resolved player ids.
func (r *Record) WithIDs(whiteID, blackID uint32) Game {
	return Game{
		WhiteID:  whiteID,
		BlackID:  blackID,
		WhiteElo: r.WhiteElo,
		BlackElo: r.BlackElo,
		Date:     r.Date,
		Result:   r.Result,
		ECO:      r.ECO,
		Moves:    r.Moves,
	}
}
