package source

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ReadFile returns the decompressed contents of a .pgn or .pgn.zst file and
// the number of bytes read from disk.
func ReadFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}

	if !isZstd(path) {
		buf := bytes.NewBuffer(make([]byte, 0, info.Size()))
		n, err := io.Copy(buf, f)
		if err != nil {
			return nil, n, fmt.Errorf("read %s: %w", path, err)
		}
		return buf.Bytes(), n, nil
	}

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, 0, fmt.Errorf("zstd %s: %w", path, err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return nil, info.Size(), fmt.Errorf("decompress %s: %w", path, err)
	}
	return buf.Bytes(), info.Size(), nil
}

// WriteZstd compresses data to path. Used to produce .pgn.zst fixtures and
// by export.
func WriteZstd(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
