package redaction

import (
	"image"
	"math"

	"github.com/menta2k/image-redactor/pkg/types"
)

// Clamp normalizes a raw detector box against the image bounds. Coordinates
// are truncated to integers, x1/y1 are clamped into [0,width]/[0,height] and
// x2/y2 into [x1,width]/[y1,height]. The result may be degenerate (zero width
// or height) but Clamp never fails.
func Clamp(box types.Box, width, height int) image.Rectangle {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	if math.IsNaN(box.X1) || math.IsNaN(box.Y1) || math.IsNaN(box.X2) || math.IsNaN(box.Y2) {
		return image.Rectangle{}
	}

	w, h := float64(width), float64(height)
	x1 := int(clamp(box.X1, 0, w))
	y1 := int(clamp(box.Y1, 0, h))
	x2 := int(clamp(box.X2, float64(x1), w))
	y2 := int(clamp(box.Y2, float64(y1), h))

	return image.Rect(x1, y1, x2, y2)
}

// Degenerate reports whether a clamped rectangle covers no pixels
func Degenerate(r image.Rectangle) bool {
	return r.Dx() <= 0 || r.Dy() <= 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
