package redaction

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ApplyMosaic pixelates r inside img in place. The region is downsampled to
// max(1, h/blockSize) x max(1, w/blockSize) with linear filtering and scaled
// back with nearest-neighbour, which produces hard-edged blocks instead of a
// blur. A blockSize below 1 is treated as 1. Degenerate rectangles are a no-op.
//
// img is mutated; pixels outside r are left untouched.
func ApplyMosaic(img *image.NRGBA, r image.Rectangle, blockSize int) {
	r = r.Intersect(img.Bounds())
	if Degenerate(r) {
		return
	}
	if blockSize < 1 {
		blockSize = 1
	}

	rw, rh := r.Dx(), r.Dy()
	sw := max(1, rw/blockSize)
	sh := max(1, rh/blockSize)

	region := imaging.Crop(img, r)
	small := imaging.Resize(region, sw, sh, imaging.Linear)
	blocks := imaging.Resize(small, rw, rh, imaging.NearestNeighbor)

	draw.Copy(img, r.Min, blocks, blocks.Bounds(), draw.Src, nil)
}
