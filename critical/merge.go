package critical

import (
	"regexp"
	"strings"

	"github.com/pithecene-io/kiln/types"
)

var commentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)

// StripComments removes /* ... */ comments.
func StripComments(css string) string {
	return commentPattern.ReplaceAllString(css, "")
}

// SplitRules splits a stylesheet into top-level rules. Nested blocks such as
// @media stay whole, braces inside quoted strings are ignored, and top-level
// statements ending in ';' (@import, @charset) are rules of their own.
func SplitRules(css string) []string {
	css = StripComments(css)

	var rules []string
	depth := 0
	start := 0
	var quote byte

	emit := func(end int) {
		if r := strings.TrimSpace(css[start:end]); r != "" {
			rules = append(rules, r)
		}
		start = end
	}

	for i := 0; i < len(css); i++ {
		c := css[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				emit(i + 1)
			}
		case ';':
			if depth == 0 {
				emit(i + 1)
			}
		}
	}
	emit(len(css))
	return rules
}

// Merge concatenates successful fragments in order, splits them into rules
// and drops every rule whose exact text was already seen. The first
// occurrence keeps its position.
func Merge(fragments []types.CriticalCSSFragment) (css string, rules int) {
	seen := make(map[string]struct{})
	var b strings.Builder
	for _, f := range fragments {
		if !f.OK() {
			continue
		}
		for _, r := range SplitRules(f.CSS) {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			b.WriteString(r)
			b.WriteByte('\n')
			rules++
		}
	}
	return b.String(), rules
}
