// Package game holds the in-memory game model shared by the parser, the
// codec and the ingest pipeline.
//
// A Record is what the parser produces from PGN text: player names plus
// header metadata and the move list as UCI tokens. Once the names have been
// resolved to store ids the Record becomes a Game, which is what the codec
// encodes into the persisted binary row.
package game
