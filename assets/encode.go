package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pithecene-io/kiln/iox"
)

// ErrEncoderUnavailable is returned when a format's external tool is not
// installed. It fails that format for the asset, not the run.
var ErrEncoderUnavailable = errors.New("encoder unavailable")

// Encoder encodes an image into one output format.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, quality int) ([]byte, error)
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, img image.Image, quality int) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	return f(ctx, img, quality)
}

// JPEGEncoder encodes with the standard library JPEG encoder.
func JPEGEncoder() Encoder {
	return EncoderFunc(func(_ context.Context, img image.Image, quality int) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
		return buf.Bytes(), nil
	})
}

// PNGEncoder encodes losslessly at best compression; quality is ignored.
func PNGEncoder() Encoder {
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	return EncoderFunc(func(_ context.Context, img image.Image, _ int) ([]byte, error) {
		var buf bytes.Buffer
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
		return buf.Bytes(), nil
	})
}

// ToolEncoder encodes by writing a lossless PNG to a temp dir and running an
// external encoder binary over it.
type ToolEncoder struct {
	// Format is the output extension, used for the temp output name.
	Format string
	// Tool is the binary name or path.
	Tool string
	// Args builds the argument list for one invocation.
	Args func(quality int, in, out string) []string
}

// CWebPEncoder returns a webp encoder backed by cwebp.
func CWebPEncoder(tool string) *ToolEncoder {
	if tool == "" {
		tool = "cwebp"
	}
	return &ToolEncoder{
		Format: "webp",
		Tool:   tool,
		Args: func(q int, in, out string) []string {
			return []string{"-quiet", "-q", strconv.Itoa(q), in, "-o", out}
		},
	}
}

// AVIFEncEncoder returns an avif encoder backed by avifenc.
func AVIFEncEncoder(tool string) *ToolEncoder {
	if tool == "" {
		tool = "avifenc"
	}
	return &ToolEncoder{
		Format: "avif",
		Tool:   tool,
		Args: func(q int, in, out string) []string {
			return []string{"-q", strconv.Itoa(q), in, out}
		},
	}
}

// Encode implements Encoder.
func (e *ToolEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	bin, err := exec.LookPath(e.Tool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (%s not found)", e.Format, ErrEncoderUnavailable, e.Tool)
	}

	dir, err := os.MkdirTemp("", "kiln-encode-*")
	if err != nil {
		return nil, fmt.Errorf("%s: create temp dir: %w", e.Format, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out."+e.Format)

	f, err := os.Create(in)
	if err != nil {
		return nil, fmt.Errorf("%s: create input: %w", e.Format, err)
	}
	if err := png.Encode(f, img); err != nil {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("%s: write input: %w", e.Format, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%s: close input: %w", e.Format, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, e.Args(quality, in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %s failed: %w: %s", e.Format, e.Tool, err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%s: read output: %w", e.Format, err)
	}
	return data, nil
}

// DefaultEncoders returns the built-in encoder set. tools overrides the
// binary used for tool-backed formats.
func DefaultEncoders(tools map[string]string) map[string]Encoder {
	return map[string]Encoder{
		"jpeg": JPEGEncoder(),
		"png":  PNGEncoder(),
		"webp": CWebPEncoder(tools["webp"]),
		"avif": AVIFEncEncoder(tools["avif"]),
	}
}
