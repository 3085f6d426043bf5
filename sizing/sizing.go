// Package sizing measures and produces compressed forms of emitted files.
//
// Sizes are real compressed lengths, not estimates: gzip at best
// compression (as served by a precompressing static host) and brotli at
// quality 11.
package sizing

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Gzip compresses data at best compression.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Brotli compresses data at best compression.
func Brotli(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

// GzipSize returns the gzip-compressed length of data.
func GzipSize(data []byte) (int64, error) {
	out, err := Gzip(data)
	if err != nil {
		return 0, err
	}
	return int64(len(out)), nil
}

// BrotliSize returns the brotli-compressed length of data.
func BrotliSize(data []byte) (int64, error) {
	out, err := Brotli(data)
	if err != nil {
		return 0, err
	}
	return int64(len(out)), nil
}

// FormatBytes renders n as B, KB or MB with one decimal (binary units).
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
