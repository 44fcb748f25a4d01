package codec

import "fmt"

// Move encoding (uint16):
//   bits 10-15: from square (0-63, a1=0 ... h8=63)
//   bits 4-9:   to square (0-63)
//   bits 0-3:   promotion piece (0=none, 1=p, 2=n, 3=b, 4=r, 5=q, 6=k)

// Move is a packed UCI move.
type Move uint16

const (
	moveFromShift  = 10
	moveToShift    = 4
	moveSquareMask = 0x3F
	movePromoMask  = 0x0F
)

// Promotion piece codes, in "pnbrqk" order.
const (
	PromoNone   = 0
	PromoPawn   = 1
	PromoKnight = 2
	PromoBishop = 3
	PromoRook   = 4
	PromoQueen  = 5
	PromoKing   = 6
)

// promoPieces is indexed by promotion code.
const promoPieces = "-pnbrqk"

// EncodeMove creates a Move from square indices and a promotion code.
func EncodeMove(from, to int, promo byte) (Move, error) {
	if from < 0 || from > 63 {
		return 0, fmt.Errorf("from square %d out of range", from)
	}
	if to < 0 || to > 63 {
		return 0, fmt.Errorf("to square %d out of range", to)
	}
	if promo > PromoKing {
		return 0, fmt.Errorf("promotion code %d out of range", promo)
	}
	return Move(uint16(from)<<moveFromShift | uint16(to)<<moveToShift | uint16(promo)), nil
}

// FromSquare returns the source square index (0-63).
func (m Move) FromSquare() int {
	return int(m>>moveFromShift) & moveSquareMask
}

// ToSquare returns the destination square index (0-63).
func (m Move) ToSquare() int {
	return int(m>>moveToShift) & moveSquareMask
}

// Promotion returns the promotion code (0=none, 1-6 in "pnbrqk" order).
func (m Move) Promotion() byte {
	return byte(m & movePromoMask)
}

// Valid reports whether the promotion nibble holds a defined code.
// Square fields are always in range since they are six bits wide.
func (m Move) Valid() bool {
	return m.Promotion() <= PromoKing
}

// ToUCI converts a Move to UCI notation (e.g., "e2e4", "e7e8q").
func (m Move) ToUCI() (string, error) {
	if !m.Valid() {
		return "", fmt.Errorf("move %#04x: promotion code %d out of range", uint16(m), m.Promotion())
	}
	from := m.FromSquare()
	to := m.ToSquare()

	buf := make([]byte, 4, 5)
	buf[0] = byte('a' + from%8)
	buf[1] = byte('1' + from/8)
	buf[2] = byte('a' + to%8)
	buf[3] = byte('1' + to/8)
	if p := m.Promotion(); p != PromoNone {
		buf = append(buf, promoPieces[p])
	}
	return string(buf), nil
}

// MoveFromUCI parses a UCI move token into a Move.
// Only the canonical lowercase form is accepted so that encoding is reversible.
func MoveFromUCI(uci string) (Move, error) {
	if len(uci) != 4 && len(uci) != 5 {
		return 0, fmt.Errorf("UCI move %q: want 4 or 5 characters", uci)
	}

	from, ok := parseSquare(uci[0], uci[1])
	if !ok {
		return 0, fmt.Errorf("invalid from square in UCI: %s", uci)
	}
	to, ok := parseSquare(uci[2], uci[3])
	if !ok {
		return 0, fmt.Errorf("invalid to square in UCI: %s", uci)
	}

	var promo byte = PromoNone
	if len(uci) == 5 {
		switch uci[4] {
		case 'p':
			promo = PromoPawn
		case 'n':
			promo = PromoKnight
		case 'b':
			promo = PromoBishop
		case 'r':
			promo = PromoRook
		case 'q':
			promo = PromoQueen
		case 'k':
			promo = PromoKing
		default:
			return 0, fmt.Errorf("invalid promotion piece: %c", uci[4])
		}
	}

	return EncodeMove(from, to, promo)
}

func parseSquare(file, rank byte) (int, bool) {
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return 0, false
	}
	return int(rank-'1')*8 + int(file-'a'), true
}
