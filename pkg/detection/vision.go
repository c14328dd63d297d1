package detection

import (
	"context"
	"image"
	"strings"

	"github.com/menta2k/image-redactor/pkg/client"
	"github.com/menta2k/image-redactor/pkg/processing"
	"github.com/menta2k/image-redactor/pkg/types"
)

// DefaultPrompt asks a vision model for every privacy-sensitive region
const DefaultPrompt = `You are a privacy redaction assistant.

Find every region of the image that must be hidden before publication:
human faces, license plates, identity documents, screens or papers with
readable personal text, and QR codes.

Return JSON only:
{
  "regions": [
    {"label": "face", "confidence": 0.9, "box": {"x": 0.42, "y": 0.18, "w": 0.12, "h": 0.16}}
  ],
  "description": "short neutral sentence"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- Boxes must fully cover the region; prefer slightly larger over too tight.
- One entry per region. Labels: face, license_plate, document, text, qr_code.
- If nothing needs hiding, return {"regions": [], "description": "..."}.
- Do not guess real identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// VisionDetector locates regions with a vision language model
type VisionDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	model     string
	prompt    string
	params    types.Params
}

// NewVisionDetector creates a detector over a vision client. An empty
// prompt selects DefaultPrompt.
func NewVisionDetector(c client.VisionClient, model, prompt string, params types.Params) *VisionDetector {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &VisionDetector{
		client:    c,
		processor: processing.NewProcessor(),
		model:     model,
		prompt:    prompt,
		params:    params,
	}
}

// Detect asks the model for regions and converts them to pixel boxes of img.
// Models do not filter on their own, so the detector parameters are applied
// here.
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.params.ImageSize, 90)
	if err != nil {
		return nil, err
	}

	result, err := d.client.LocateRegions(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	dets := make([]types.Detection, 0, len(result.Regions))
	for _, r := range result.Regions {
		box := normalizeBox(r.Box)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		dets = append(dets, types.Detection{
			Box:        box.ToPixels(b.Dx(), b.Dy()),
			Confidence: clamp(r.Score(), 0, 1),
			Class:      ClassForLabel(r.Label),
			Label:      normalizeLabel(r.Label),
		})
	}

	return Filter(dets, d.params), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *VisionDetector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.params.ImageSize, 90)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imgB64)
}

// classes maps model labels onto stable class ids so class filtering works
// the same for model and inference-server backends
var classes = map[string]int{
	"face":          0,
	"person":        0,
	"license_plate": 1,
	"document":      2,
	"text":          3,
	"qr_code":       4,
}

// ClassForLabel returns the class id of a model label, -1 when unknown
func ClassForLabel(label string) int {
	if c, ok := classes[normalizeLabel(label)]; ok {
		return c
	}
	return -1
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(label)
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

// normalizeBox keeps a normalized box inside [0,1]
func normalizeBox(b types.NormBox) types.NormBox {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.NormBox{
		X: x,
		Y: y,
		W: clamp(b.X+b.W, 0, 1) - x,
		H: clamp(b.Y+b.H, 0, 1) - y,
	}
}
