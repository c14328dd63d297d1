package types

import "math"

// Box is a raw detector bounding box in pixel coordinates (xyxy, y-down).
// Detectors commonly emit floating point values that may lie outside the image.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the unclamped box width
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the unclamped box height
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// IoU returns the intersection-over-union of two boxes
func (b Box) IoU(o Box) float64 {
	ix := math.Min(b.X2, o.X2) - math.Max(b.X1, o.X1)
	iy := math.Min(b.Y2, o.Y2) - math.Max(b.Y1, o.Y1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Width()*b.Height() + o.Width()*o.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is a single detector output. Class and Label are carried through
// untouched by redaction.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Class      int     `json:"class"`
	Label      string  `json:"label,omitempty"`
}

// NormBox is a bounding box with coordinates normalized to [0,1], as returned
// by vision language models.
type NormBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToPixels converts a normalized box into a pixel box for an image of the
// given size.
func (n NormBox) ToPixels(width, height int) Box {
	fw, fh := float64(width), float64(height)
	return Box{
		X1: n.X * fw,
		Y1: n.Y * fh,
		X2: (n.X + n.W) * fw,
		Y2: (n.Y + n.H) * fh,
	}
}

// LocatedRegion is one region reported by a vision language model.
// Confidence is nil when the model left it out.
type LocatedRegion struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
	Box        NormBox  `json:"box"`
}

// Score returns the reported confidence, 1 when the model gave none
func (r LocatedRegion) Score() float64 {
	if r.Confidence == nil {
		return 1
	}
	return *r.Confidence
}

// LocateResult contains the complete answer from a vision language model
type LocateResult struct {
	Regions     []LocatedRegion `json:"regions"`
	Description string          `json:"description"`
}

// Params is the fixed detector configuration, supplied once when a detector
// is constructed and passed through to backends unmodified.
type Params struct {
	Confidence    float64 `json:"conf"`
	IOU           float64 `json:"iou"`
	ImageSize     int     `json:"imgsz"`
	Classes       []int   `json:"classes,omitempty"`
	MaxDetections int     `json:"max_det,omitempty"`
}
