package critical

import "strings"

// Minify strips comments, collapses whitespace, removes spaces around
// separators and drops semicolons before a closing brace. Quoted strings
// pass through unchanged, and whitespace before a ':' is kept when the
// colon belongs to a selector, since ".nav :hover" and ".nav:hover" select
// different elements. The result is never longer than the input.
func Minify(css string) string {
	out := make([]byte, 0, len(css))
	space := false

	for i := 0; i < len(css); i++ {
		c := css[i]
		switch {
		case c == '/' && i+1 < len(css) && css[i+1] == '*':
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				i = len(css)
				continue
			}
			i += end + 3
			space = true
			continue
		case isSpace(c):
			space = true
			continue
		}

		if space && len(out) > 0 && keepSpace(out[len(out)-1], c, css, i) {
			out = append(out, ' ')
		}
		space = false

		switch c {
		case '"', '\'':
			end := stringEnd(css, i)
			out = append(out, css[i:end]...)
			i = end - 1
		case '\\':
			end := min(i+2, len(css))
			out = append(out, css[i:end]...)
			i = end - 1
		case '}':
			for len(out) > 0 && out[len(out)-1] == ';' {
				out = out[:len(out)-1]
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// keepSpace reports whether collapsed whitespace between prev and next is
// significant.
func keepSpace(prev, next byte, css string, i int) bool {
	switch prev {
	case '{', '}', ';', ',', ':':
		return false
	}
	switch next {
	case '{', '}', ';', ',':
		return false
	case ':':
		return selectorColon(css, i)
	}
	return true
}

// selectorColon reports whether the colon at css[i] is part of a selector:
// the next '{', ';' or '}' outside a string is an opening brace.
func selectorColon(css string, i int) bool {
	for j := i + 1; j < len(css); j++ {
		switch css[j] {
		case '"', '\'':
			j = stringEnd(css, j) - 1
		case '\\':
			j++
		case '{':
			return true
		case ';', '}':
			return false
		}
	}
	return false
}

// stringEnd returns the index just past the quoted string starting at
// css[i], or len(css) when it is unterminated.
func stringEnd(css string, i int) int {
	quote := css[i]
	for j := i + 1; j < len(css); j++ {
		switch css[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(css)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
