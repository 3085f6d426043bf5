package assets

import (
	"bytes"
	"regexp"
)

var (
	svgComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	svgBetweenTag = regexp.MustCompile(`>\s+<`)
	svgSpaceRun   = regexp.MustCompile(`\s{2,}`)
)

// MinifySVG strips comments and collapses insignificant whitespace.
// Text content keeps single spaces.
func MinifySVG(data []byte) []byte {
	out := svgComment.ReplaceAll(data, nil)
	out = svgBetweenTag.ReplaceAll(out, []byte("><"))
	out = svgSpaceRun.ReplaceAll(out, []byte(" "))
	return bytes.TrimSpace(out)
}
