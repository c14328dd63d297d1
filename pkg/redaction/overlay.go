package redaction

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ApplyOverlay replaces r inside img with cover stretched to exactly r's size.
// Aspect ratio is not preserved. The cover itself is never modified.
//
// img is mutated; pixels outside r are left untouched.
func ApplyOverlay(img *image.NRGBA, r image.Rectangle, cover image.Image) error {
	if !usableCover(cover) {
		return fmt.Errorf("%w: overlay requires a non-empty cover image", ErrInvalidParameter)
	}
	r = r.Intersect(img.Bounds())
	if Degenerate(r) {
		return nil
	}

	resized := imaging.Resize(cover, r.Dx(), r.Dy(), imaging.Linear)
	draw.Copy(img, r.Min, resized, resized.Bounds(), draw.Src, nil)
	return nil
}
