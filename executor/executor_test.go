package executor

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedScript(t *testing.T) {
	if !IsEmbedded() {
		t.Fatal("IsEmbedded() = false, want true")
	}
	if got := len(EmbeddedChecksum()); got != 64 {
		t.Errorf("len(EmbeddedChecksum()) = %d, want 64", got)
	}
	if !bytes.Contains(embeddedScript, []byte("--launch-browser")) {
		t.Error("embedded script does not handle --launch-browser")
	}
}

func TestResolveScript_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspector.mjs")
	if err := os.WriteFile(path, []byte("// stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveScript(path)
	if err != nil {
		t.Fatalf("ResolveScript() error = %v", err)
	}
	if got != path {
		t.Errorf("ResolveScript() = %q, want %q", got, path)
	}
}

func TestResolveScript_MissingOverride(t *testing.T) {
	_, err := ResolveScript(filepath.Join(t.TempDir(), "missing.mjs"))
	if err == nil {
		t.Fatal("ResolveScript() expected error for missing override")
	}
}

func TestResolveScript_Embedded(t *testing.T) {
	path, err := ResolveScript("")
	if err != nil {
		t.Fatalf("ResolveScript() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read extracted script: %v", err)
	}
	if !bytes.Equal(data, embeddedScript) {
		t.Error("extracted script differs from embedded script")
	}
	if !strings.Contains(filepath.Dir(path), "kiln-inspector-") {
		t.Errorf("extracted dir = %q, want kiln-inspector- prefix", filepath.Dir(path))
	}
}

func TestProcess_StdinStdoutExitCode(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	p := NewProcess(Config{
		Node:       "/bin/sh",
		ScriptPath: "-c",
		Args:       []string{"cat; echo boom >&2; exit 3"},
		Input:      map[string]string{"url": "http://localhost/"},
	})
	if err := p.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	out, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != `{"url":"http://localhost/"}` {
		t.Errorf("stdout = %q, want echoed JSON input", got)
	}

	result, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if got := strings.TrimSpace(string(result.StderrBytes)); got != "boom" {
		t.Errorf("stderr = %q, want %q", got, "boom")
	}
}

func TestProcess_WaitBeforeStart(t *testing.T) {
	if _, err := NewProcess(Config{}).Wait(); err == nil {
		t.Error("Wait() expected error before Start")
	}
}

func TestManagedBrowser_CloseNil(t *testing.T) {
	var mb *ManagedBrowser
	if err := mb.Close(); err != nil {
		t.Errorf("Close() on nil = %v, want nil", err)
	}
}
