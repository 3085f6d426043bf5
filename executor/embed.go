// Package executor manages the Node page inspector: the embedded inspector
// script, one-shot capture processes and the shared managed browser.
//
// The script is embedded at build time and extracted to a temporary
// directory on first use, so the kiln binary needs only node and puppeteer
// on the host.
package executor

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pithecene-io/kiln/types"
)

//go:embed bundle/inspector.mjs
var embeddedScript []byte

var (
	extractOnce   sync.Once
	extractedPath string
	extractErr    error
)

// EmbeddedChecksum returns the SHA256 checksum of the embedded script.
func EmbeddedChecksum() string {
	hash := sha256.Sum256(embeddedScript)
	return hex.EncodeToString(hash[:])
}

// IsEmbedded returns true if a script is embedded in this binary.
func IsEmbedded() bool {
	return len(embeddedScript) > 0
}

// ExtractedPath returns the path to the extracted script, extracting on
// the first call.
func ExtractedPath() (string, error) {
	extractOnce.Do(func() {
		extractedPath, extractErr = extractScript()
	})
	return extractedPath, extractErr
}

func extractScript() (string, error) {
	if !IsEmbedded() {
		return "", fmt.Errorf("no embedded inspector script available")
	}

	// Versioned, hash-named directory so several kiln versions coexist.
	dirName := fmt.Sprintf("kiln-inspector-%s-%s", types.Version, EmbeddedChecksum()[:16])
	dir := filepath.Join(os.TempDir(), dirName)
	scriptPath := filepath.Join(dir, "inspector.mjs")

	if info, err := os.Stat(scriptPath); err == nil && info.Size() == int64(len(embeddedScript)) {
		return scriptPath, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := os.WriteFile(scriptPath, embeddedScript, 0o755); err != nil {
		return "", fmt.Errorf("failed to write inspector script: %w", err)
	}
	return scriptPath, nil
}

// ResolveScript returns override when set, otherwise the extracted
// embedded script.
func ResolveScript(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("inspector script %s: %w", override, err)
		}
		return override, nil
	}
	return ExtractedPath()
}

// Cleanup removes the extracted script directory.
// Safe to call multiple times or if extraction never happened.
func Cleanup() error {
	if extractedPath == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Dir(extractedPath)); err != nil {
		return fmt.Errorf("failed to cleanup inspector script: %w", err)
	}
	return nil
}
