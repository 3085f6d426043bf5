package inspector

import (
	"net/url"
	"strings"
	"unicode/utf16"

	"github.com/pithecene-io/kiln/types"
)

// BuildFragment assembles a viewport fragment from stylesheet coverage and
// the DOM-derived rules. Only stylesheets on the page's origin contribute;
// an empty coverage URL denotes an inline <style> element and always counts.
// Range offsets are UTF-16 code units, as the browser reports them, and are
// clamped to the stylesheet text.
func BuildFragment(pageURL string, coverage []types.CoverageFrame, domCSS string) types.CriticalCSSFragment {
	var used []string
	for _, c := range coverage {
		if !SameOrigin(pageURL, c.URL) {
			continue
		}
		units := utf16.Encode([]rune(c.Text))
		for _, r := range c.Ranges {
			start, end := clamp(r.Start, len(units)), clamp(r.End, len(units))
			if start >= end {
				continue
			}
			used = append(used, string(utf16.Decode(units[start:end])))
		}
	}
	covCSS := strings.Join(used, "\n")

	css := covCSS
	if domCSS != "" {
		if css != "" {
			css += "\n"
		}
		css += domCSS
	}

	return types.CriticalCSSFragment{
		CSS:           css,
		Size:          len(css),
		CoverageBytes: len(covCSS),
		DOMBytes:      len(domCSS),
	}
}

// SameOrigin reports whether sheetURL shares scheme, host and port with
// pageURL. An empty sheetURL is an inline stylesheet and matches.
func SameOrigin(pageURL, sheetURL string) bool {
	if sheetURL == "" {
		return true
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	sheet, err := url.Parse(sheetURL)
	if err != nil {
		return false
	}
	// Relative references resolve against the page.
	if sheet.Host == "" && sheet.Scheme == "" {
		return true
	}
	return strings.EqualFold(page.Scheme, sheet.Scheme) && strings.EqualFold(page.Host, sheet.Host)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}
