package critical

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/pithecene-io/kiln/types"
)

// pageModel simulates a page: each rule applies at the listed viewport
// widths. Rules that never apply stand in for an unused stylesheet.
type pageModel struct {
	rules map[string][]int
	order []string
}

func (p *pageModel) add(rule string, widths ...int) {
	if p.rules == nil {
		p.rules = make(map[string][]int)
	}
	p.rules[rule] = widths
	p.order = append(p.order, rule)
}

type stubInspector struct {
	page  *pageModel
	fail  map[int]error
	mu    sync.Mutex
	calls []types.Viewport
}

var _ PageInspector = (*stubInspector)(nil)

func (s *stubInspector) LoadAndCapture(_ context.Context, _ string, vp types.Viewport) (types.CriticalCSSFragment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, vp)
	s.mu.Unlock()
	if err := s.fail[vp.Width]; err != nil {
		return types.CriticalCSSFragment{}, err
	}
	var b strings.Builder
	for _, r := range s.page.order {
		if slices.Contains(s.page.rules[r], vp.Width) {
			b.WriteString(r)
			b.WriteString("\n")
		}
	}
	return types.CriticalCSSFragment{CSS: b.String()}, nil
}

var threeViewports = []types.Viewport{
	{Width: 320, Height: 568},
	{Width: 768, Height: 1024},
	{Width: 1920, Height: 1080},
}

func TestExtract_ExcludesUnusedRules(t *testing.T) {
	page := &pageModel{}
	// Roughly 10 KB of used rules, applied at one or more viewports.
	for i := range 100 {
		widths := []int{320, 768, 1920}[:1+i%3]
		page.add(fmt.Sprintf(".used-%03d { margin: %dpx; padding: 0 %dpx; color: #%06x; }", i, i, i, i*1000), widths...)
	}
	// Roughly 5 KB of rules that never apply.
	var unused []string
	for i := range 50 {
		r := fmt.Sprintf(".unused-%03d { display: grid; grid-template-columns: repeat(%d, 1fr); }", i, i+1)
		page.add(r)
		unused = append(unused, r)
	}

	ext := NewExtractor(Config{Viewports: threeViewports, MaxBytes: 14 << 10}, &stubInspector{page: page}, nil, nil)
	bundle, err := ext.Extract(t.Context(), "http://localhost:4173/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for _, r := range unused {
		if strings.Contains(bundle.CSS, r) {
			t.Errorf("bundle contains unused rule %q", r)
		}
	}
	if bundle.Rules != 100 {
		t.Errorf("Rules = %d, want 100 used rules", bundle.Rules)
	}
	if len(bundle.Fragments) != 3 {
		t.Errorf("Fragments = %d, want 3", len(bundle.Fragments))
	}
}

func TestExtract_NoDuplicateRulesAndMinifiedNotLarger(t *testing.T) {
	page := &pageModel{}
	page.add("body { margin: 0; }", 320, 768, 1920)
	page.add("header   { display : flex ; }", 320, 768, 1920)
	page.add("@media (min-width: 768px) { .nav { display: block; } }", 768, 1920)
	page.add(".hero { height: 60vh; }", 1920)

	ext := NewExtractor(Config{Viewports: threeViewports}, &stubInspector{page: page}, nil, nil)
	bundle, err := ext.Extract(t.Context(), "http://localhost/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	rules := SplitRules(bundle.CSS)
	seen := make(map[string]bool)
	for _, r := range rules {
		if seen[r] {
			t.Errorf("duplicate rule %q", r)
		}
		seen[r] = true
	}
	if len(rules) != 4 {
		t.Errorf("rules = %d, want 4: %q", len(rules), rules)
	}
	if rules[0] != "body { margin: 0; }" {
		t.Errorf("first rule = %q, want first-seen order preserved", rules[0])
	}
	if bundle.MinSize > bundle.Size {
		t.Errorf("minified %d > unminified %d", bundle.MinSize, bundle.Size)
	}
}

func TestExtract_PartialViewportFailure(t *testing.T) {
	page := &pageModel{}
	page.add("body { margin: 0; }", 320, 768, 1920)

	insp := &stubInspector{page: page, fail: map[int]error{768: errors.New("navigation timeout")}}
	bundle, err := NewExtractor(Config{Viewports: threeViewports}, insp, nil, nil).Extract(t.Context(), "http://x/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var failed []string
	for _, f := range bundle.Fragments {
		if !f.OK() {
			failed = append(failed, f.Viewport)
		}
	}
	if !slices.Equal(failed, []string{"768x1024"}) {
		t.Errorf("failed viewports = %v, want [768x1024]", failed)
	}
	if bundle.Minified != "body{margin:0}" {
		t.Errorf("Minified = %q", bundle.Minified)
	}
}

func TestExtract_AllViewportsFail(t *testing.T) {
	boom := errors.New("connection refused")
	insp := &stubInspector{page: &pageModel{}, fail: map[int]error{320: boom, 768: boom, 1920: boom}}

	bundle, err := NewExtractor(Config{Viewports: threeViewports}, insp, nil, nil).Extract(t.Context(), "http://x/")
	if !errors.Is(err, ErrNoCriticalCSS) {
		t.Fatalf("err = %v, want ErrNoCriticalCSS", err)
	}
	if bundle == nil || len(bundle.Fragments) != 3 {
		t.Fatal("expected fragments recorded on the failed bundle")
	}
	if !strings.Contains(err.Error(), "3 of 3") {
		t.Errorf("error should report failed viewport count, got %v", err)
	}
}

func TestExtract_ZeroBytesIsFatal(t *testing.T) {
	insp := &stubInspector{page: &pageModel{}}
	_, err := NewExtractor(Config{Viewports: threeViewports}, insp, nil, nil).Extract(t.Context(), "http://x/")
	if !errors.Is(err, ErrNoCriticalCSS) {
		t.Fatalf("err = %v, want ErrNoCriticalCSS", err)
	}
}

func TestExtract_OverCeilingIsWarningOnly(t *testing.T) {
	page := &pageModel{}
	page.add(".big { background: url(data:image/png;base64,"+strings.Repeat("A", 200)+"); }", 320)

	ext := NewExtractor(Config{Viewports: threeViewports[:1], MaxBytes: 64}, &stubInspector{page: page}, nil, nil)
	bundle, err := ext.Extract(t.Context(), "http://x/")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bundle.OverBudget {
		t.Error("OverBudget = false, want true")
	}
}

func TestRun_WritesOutputs(t *testing.T) {
	page := &pageModel{}
	page.add("body { margin: 0; }", 320)
	dir := t.TempDir()

	ext := NewExtractor(Config{Viewports: threeViewports[:1], Stylesheet: "/css/main.css"}, &stubInspector{page: page}, nil, nil)
	if _, err := ext.Run(t.Context(), "http://x/", dir); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{CSSFile, MinCSSFile, InlineFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	inline, _ := os.ReadFile(filepath.Join(dir, InlineFile))
	for _, want := range []string{
		"<style id=\"critical-css\">body{margin:0}</style>",
		`rel="preload" href="/css/main.css"`,
		`<noscript><link rel="stylesheet" href="/css/main.css"></noscript>`,
	} {
		if !strings.Contains(string(inline), want) {
			t.Errorf("inline template missing %q:\n%s", want, inline)
		}
	}
}

func TestRun_NoOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	insp := &stubInspector{page: &pageModel{}}
	if _, err := NewExtractor(Config{Viewports: threeViewports}, insp, nil, nil).Run(t.Context(), "http://x/", dir); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, CSSFile)); !os.IsNotExist(err) {
		t.Errorf("critical.css written despite failure: %v", err)
	}
}
