package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/freeeve/gamevault/internal/game"
)

// Encoded game layout (big-endian), HeaderSize + 2*move_count bytes:
//
//	offset 0  : white_player_id  u32
//	offset 4  : black_player_id  u32
//	offset 8  : white_elo        u16 (0 = unknown)
//	offset 10 : black_elo        u16 (0 = unknown)
//	offset 12 : year_offset      u8  (year-1900, 0 = unknown)
//	offset 13 : month            u8  (0 = unknown)
//	offset 14 : day              u8  (0 = unknown)
//	offset 15 : result           u8  (0=BlackWin 1=WhiteWin 2=Draw 3=Unknown)
//	offset 16 : eco              u16 ((letter-'A')*100+number, 0xFFFF = absent)
//	offset 18 : move_count       u16
//	offset 20 : move_count x u16 packed moves
const (
	offWhiteID   = 0
	offBlackID   = 4
	offWhiteElo  = 8
	offBlackElo  = 10
	offYear      = 12
	offMonth     = 13
	offDay       = 14
	offResult    = 15
	offECO       = 16
	offMoveCount = 18

	// HeaderSize is the fixed length of the header preceding the move block.
	HeaderSize = 20

	ecoAbsent = 0xFFFF
	yearBase  = 1900
)

// Codec encodes and decodes games. It owns a bounded move cache and is safe
// for concurrent use; callers typically create one per pipeline run.
type Codec struct {
	cache *moveCache
}

// New creates a Codec whose move cache holds up to cacheSize tokens per
// direction (0 = DefaultCacheSize).
func New(cacheSize int) *Codec {
	return &Codec{cache: newMoveCache(cacheSize)}
}

// EncodedLen returns the buffer length for a game with n moves.
func EncodedLen(n int) int {
	return HeaderSize + 2*n
}

// PackMove converts a UCI token into its packed form.
func (c *Codec) PackMove(token string) (Move, error) {
	return c.cache.pack(token)
}

// UnpackMove converts a packed move back into its UCI token.
func (c *Codec) UnpackMove(m Move) (string, error) {
	return c.cache.unpack(m)
}

// Encode serializes g. The output is deterministic: equal games produce
// byte-identical buffers.
func (c *Codec) Encode(g game.Game) ([]byte, error) {
	if !g.Result.Valid() {
		return nil, encodingErr("result", "value %d outside enumeration", g.Result)
	}
	eco, err := encodeECO(g.ECO)
	if err != nil {
		return nil, err
	}
	year, err := encodeYear(g.Date.Year)
	if err != nil {
		return nil, err
	}
	if g.Date.Month < 0 || g.Date.Month > 12 {
		return nil, encodingErr("month", "%d out of range", g.Date.Month)
	}
	if g.Date.Day < 0 || g.Date.Day > 31 {
		return nil, encodingErr("day", "%d out of range", g.Date.Day)
	}
	if len(g.Moves) > game.MaxMoves {
		return nil, encodingErr("move_count", "%d moves exceeds %d", len(g.Moves), game.MaxMoves)
	}

	buf := make([]byte, EncodedLen(len(g.Moves)))
	binary.BigEndian.PutUint32(buf[offWhiteID:], g.WhiteID)
	binary.BigEndian.PutUint32(buf[offBlackID:], g.BlackID)
	binary.BigEndian.PutUint16(buf[offWhiteElo:], g.WhiteElo)
	binary.BigEndian.PutUint16(buf[offBlackElo:], g.BlackElo)
	buf[offYear] = year
	buf[offMonth] = byte(g.Date.Month)
	buf[offDay] = byte(g.Date.Day)
	buf[offResult] = byte(g.Result)
	binary.BigEndian.PutUint16(buf[offECO:], eco)
	binary.BigEndian.PutUint16(buf[offMoveCount:], uint16(len(g.Moves)))

	for i, tok := range g.Moves {
		m, err := c.cache.pack(tok)
		if err != nil {
			return nil, &EncodingError{Field: fmt.Sprintf("moves[%d]", i), Err: err}
		}
		binary.BigEndian.PutUint16(buf[HeaderSize+2*i:], uint16(m))
	}
	return buf, nil
}

// Decode parses a buffer produced by Encode.
func (c *Codec) Decode(data []byte) (game.Game, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return game.Game{}, err
	}
	if need := EncodedLen(h.MoveCount); len(data) < need {
		return game.Game{}, decodingErr("moves", "buffer too short: got %d bytes, need %d for %d moves", len(data), need, h.MoveCount)
	}

	moves := make([]string, h.MoveCount)
	for i := range moves {
		m := Move(binary.BigEndian.Uint16(data[HeaderSize+2*i:]))
		tok, err := c.cache.unpack(m)
		if err != nil {
			return game.Game{}, &DecodingError{Field: fmt.Sprintf("moves[%d]", i), Err: err}
		}
		moves[i] = tok
	}

	return game.Game{
		WhiteID:  h.WhiteID,
		BlackID:  h.BlackID,
		WhiteElo: h.WhiteElo,
		BlackElo: h.BlackElo,
		Date:     h.Date,
		Result:   h.Result,
		ECO:      h.ECO,
		Moves:    moves,
	}, nil
}

// Header is the fixed-offset portion of an encoded game.
type Header struct {
	WhiteID   uint32
	BlackID   uint32
	WhiteElo  uint16
	BlackElo  uint16
	Date      game.Date
	Result    game.Result
	ECO       string
	MoveCount int
}

// DecodeHeader decodes only the fixed header; the move block is not read.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, decodingErr("header", "buffer too short: got %d bytes, need %d", len(data), HeaderSize)
	}

	result := game.Result(data[offResult])
	if !result.Valid() {
		return Header{}, decodingErr("result", "value %d outside enumeration", data[offResult])
	}
	eco, err := decodeECO(binary.BigEndian.Uint16(data[offECO:]))
	if err != nil {
		return Header{}, err
	}
	month, day := int(data[offMonth]), int(data[offDay])
	if month > 12 {
		return Header{}, decodingErr("month", "%d out of range", month)
	}
	if day > 31 {
		return Header{}, decodingErr("day", "%d out of range", day)
	}
	year := 0
	if data[offYear] != 0 {
		year = yearBase + int(data[offYear])
	}

	return Header{
		WhiteID:   binary.BigEndian.Uint32(data[offWhiteID:]),
		BlackID:   binary.BigEndian.Uint32(data[offBlackID:]),
		WhiteElo:  binary.BigEndian.Uint16(data[offWhiteElo:]),
		BlackElo:  binary.BigEndian.Uint16(data[offBlackElo:]),
		Date:      game.Date{Year: year, Month: month, Day: day},
		Result:    result,
		ECO:       eco,
		MoveCount: int(binary.BigEndian.Uint16(data[offMoveCount:])),
	}, nil
}

// encodeYear maps a year to its one-byte offset. Year 1900 itself collides
// with the unknown marker, so only 1901-2155 are representable.
func encodeYear(year int) (byte, error) {
	if year == 0 {
		return 0, nil
	}
	if year <= yearBase || year > yearBase+255 {
		return 0, encodingErr("year", "%d outside %d-%d", year, yearBase+1, yearBase+255)
	}
	return byte(year - yearBase), nil
}

func encodeECO(eco string) (uint16, error) {
	if eco == "" {
		return ecoAbsent, nil
	}
	if !game.ValidECO(eco) {
		return 0, encodingErr("eco", "%q does not match [A-E][0-9]{2}", eco)
	}
	letter := uint16(eco[0] - 'A')
	number := uint16(eco[1]-'0')*10 + uint16(eco[2]-'0')
	return letter*100 + number, nil
}

func decodeECO(v uint16) (string, error) {
	if v == ecoAbsent {
		return "", nil
	}
	letter, number := v/100, v%100
	if letter > 4 {
		return "", decodingErr("eco", "value %d outside enumeration", v)
	}
	return string([]byte{byte('A' + letter), byte('0' + number/10), byte('0' + number%10)}), nil
}
