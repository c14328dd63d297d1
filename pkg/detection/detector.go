package detection

import (
	"context"
	"image"

	"github.com/menta2k/image-redactor/pkg/types"
)

// Detector produces bounding boxes for the regions of an image that must be
// redacted. Implementations are long-lived handles configured once at
// construction and must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.Detection, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	return f(ctx, img)
}

// Filter applies the fixed detector parameters to raw detections from a
// backend that does not filter on its own. Detections below the confidence
// threshold or outside the class allow-list are dropped, emission order is
// preserved and the result is capped at MaxDetections when it is set.
func Filter(dets []types.Detection, p types.Params) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < p.Confidence {
			continue
		}
		if len(p.Classes) > 0 && !containsClass(p.Classes, d.Class) {
			continue
		}
		out = append(out, d)
		if p.MaxDetections > 0 && len(out) == p.MaxDetections {
			break
		}
	}
	return out
}

func containsClass(classes []int, c int) bool {
	for _, v := range classes {
		if v == c {
			return true
		}
	}
	return false
}
