package redaction

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-redactor/pkg/detection"
	"github.com/menta2k/image-redactor/pkg/types"
)

// Result is the outcome of one redaction call
type Result struct {
	Image      *image.NRGBA
	Detections []types.Detection
	Regions    int  // regions actually redacted
	Skipped    int  // degenerate detections
	Applied    Kind // strategy used after any downgrade
	Downgraded bool
	Warning    string
}

// Driver runs detection and dispatches every detected region to a strategy.
// The detector handle is long-lived and shared read-only between calls, so a
// single Driver can serve concurrent requests.
type Driver struct {
	detector detection.Detector
}

// NewDriver creates a driver around a detector handle
func NewDriver(detector detection.Detector) *Driver {
	return &Driver{detector: detector}
}

// Run detects regions in img and redacts them with s
func (d *Driver) Run(ctx context.Context, img image.Image, s Strategy) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidParameter)
	}
	if d.detector == nil {
		return nil, fmt.Errorf("%w: no detector configured", ErrDetection)
	}

	detections, err := d.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	return Redact(img, detections, s)
}

// Redact redacts precomputed detections without calling the detector
func (d *Driver) Redact(img image.Image, detections []types.Detection, s Strategy) (*Result, error) {
	return Redact(img, detections, s)
}

// Redact applies s to every detection in emission order. The source image is
// copied once into a working buffer that the strategies mutate in place, so
// img itself is never modified. Overlapping detections are redacted
// independently; degenerate ones are skipped and not counted.
func Redact(img image.Image, detections []types.Detection, s Strategy) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidParameter)
	}

	applied, warning, err := resolve(s)
	if err != nil {
		return nil, err
	}

	out := imaging.Clone(img)
	res := &Result{
		Image:      out,
		Detections: detections,
		Applied:    applied.Kind,
		Downgraded: applied.Kind != s.Kind,
		Warning:    warning,
	}

	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for _, det := range detections {
		r := Clamp(det.Box, w, h)
		if Degenerate(r) {
			res.Skipped++
			continue
		}

		switch applied.Kind {
		case KindOverlay:
			if err := ApplyOverlay(out, r, applied.Cover); err != nil {
				return nil, err
			}
		default:
			ApplyMosaic(out, r, applied.BlockSize)
		}
		res.Regions++
	}

	return res, nil
}
