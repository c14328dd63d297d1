// Package remote talks to an object-detection inference server (a YOLO
// service or similar) over HTTP or a persistent websocket.
package remote

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/types"
)

// ErrServer is returned when the inference server reports a failure
var ErrServer = errors.New("inference server error")

// Request is the JSON body sent to the inference server. Image holds the
// base64 encoded JPEG; box coordinates in the answer refer to its pixels.
type Request struct {
	Image     string  `json:"image"`
	Conf      float64 `json:"conf"`
	IOU       float64 `json:"iou"`
	ImageSize int     `json:"imgsz"`
	Classes   []int   `json:"classes,omitempty"`
	MaxDet    int     `json:"max_det,omitempty"`
}

// Detection is one box as reported by the server, xyxy in pixels
type Detection struct {
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
	Class      int        `json:"class"`
	Label      string     `json:"label,omitempty"`
}

// Response is the JSON answer of the inference server
type Response struct {
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

// encodeQuality keeps re-encoding artefacts from moving box edges
const encodeQuality = 95

func newRequest(img image.Image, p types.Params) (*Request, error) {
	data, err := codec.EncodeBytes(img, codec.JPEG, encodeQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Request{
		Image:     base64.StdEncoding.EncodeToString(data),
		Conf:      p.Confidence,
		IOU:       p.IOU,
		ImageSize: p.ImageSize,
		Classes:   p.Classes,
		MaxDet:    p.MaxDetections,
	}, nil
}

// toDetections converts the response into pipeline detections, keeping the
// server's order
func (r *Response) toDetections() ([]types.Detection, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrServer, r.Error)
	}
	out := make([]types.Detection, 0, len(r.Detections))
	for _, d := range r.Detections {
		out = append(out, types.Detection{
			Box:        types.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
			Confidence: d.Confidence,
			Class:      d.Class,
			Label:      d.Label,
		})
	}
	return out, nil
}
