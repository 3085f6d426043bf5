package assets

import (
	"image"
	"math"
	"slices"

	"golang.org/x/image/draw"
)

// TargetWidths returns the breakpoints strictly narrower than native,
// ascending and deduplicated. The native-width variant is produced
// separately, so no returned width ever reaches the source width.
func TargetWidths(native int, breakpoints []int) []int {
	var out []int
	for _, bp := range breakpoints {
		if bp > 0 && bp < native {
			out = append(out, bp)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Resize scales src to width, preserving aspect ratio.
func Resize(src image.Image, width int) image.Image {
	b := src.Bounds()
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
