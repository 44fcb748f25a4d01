// Package source lists, downloads and opens PGN archives.
package source

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrLengthMismatch is returned when a download's size differs from its
// declared Content-Length.
var ErrLengthMismatch = errors.New("received length does not match declared length")

// Archive is a remote PGN archive.
type Archive struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Source lists archives and streams their bytes.
type Source interface {
	List(ctx context.Context) ([]Archive, error)
	Fetch(ctx context.Context, a Archive, dst io.Writer) (int64, error)
}

// IsPGNFile reports whether name is a .pgn or .pgn.zst file.
func IsPGNFile(name string) bool {
	ext := path.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		// Check for .pgn.zst
		base := name[:len(name)-4]
		return path.Ext(base) == ".pgn"
	}
	return false
}

func isZstd(name string) bool {
	return strings.HasSuffix(name, ".zst")
}
