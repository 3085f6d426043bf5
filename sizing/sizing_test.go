package sizing

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func TestGzip_RoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("function f(){return 1}\n", 200))

	out, err := Gzip(data)
	if err != nil {
		t.Fatalf("Gzip() error = %v", err)
	}
	if len(out) >= len(data) {
		t.Errorf("len(Gzip()) = %d, want < %d", len(out), len(data))
	}

	r, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	back, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Error("gzip round trip mismatch")
	}
}

func TestBrotli_RoundTrip(t *testing.T) {
	data := []byte(strings.Repeat(".a{color:red}", 300))

	out, err := Brotli(data)
	if err != nil {
		t.Fatalf("Brotli() error = %v", err)
	}
	back, err := io.ReadAll(brotli.NewReader(bytes.NewReader(out)))
	if err != nil {
		t.Fatalf("read brotli: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Error("brotli round trip mismatch")
	}
}

func TestSizes(t *testing.T) {
	data := []byte(strings.Repeat("x", 4096))
	gz, err := GzipSize(data)
	if err != nil || gz <= 0 || gz >= 4096 {
		t.Errorf("GzipSize() = %d, %v", gz, err)
	}
	br, err := BrotliSize(data)
	if err != nil || br <= 0 || br >= 4096 {
		t.Errorf("BrotliSize() = %d, %v", br, err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{295 * 1024, "295.0 KB"},
		{2 << 20, "2.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
