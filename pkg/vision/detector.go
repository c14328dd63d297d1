package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-redactor/pkg/types"
)

// SaliencyLabel is the label attached to every saliency detection
const SaliencyLabel = "salient"

// SubjectDetector finds high-detail regions (text, faces, plates at close
// range) without a model. It is a coarse offline fallback, not a classifier.
type SubjectDetector struct {
	config DetectionConfig
	params types.Params
}

// DetectionConfig holds configuration for saliency detection
type DetectionConfig struct {
	EdgeThreshold   float64 // minimum window score
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64 // minimum window area as a share of the image
	MaxRegions      int
	AnalysisSize    int // longest side of the analysed copy
}

// DefaultConfig returns the default saliency configuration
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:   0.15,
		ContrastWeight:  1.0,
		ColorWeight:     0.0,
		MinSubjectRatio: 0.005,
		MaxRegions:      10,
		AnalysisSize:    320,
	}
}

// New creates a new SubjectDetector with default configuration
func New(params types.Params) *SubjectDetector {
	return NewWithConfig(DefaultConfig(), params)
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig, params types.Params) *SubjectDetector {
	return &SubjectDetector{config: config, params: params}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

func (r Region) box(scale float64) types.Box {
	return types.Box{
		X1: float64(r.X) * scale,
		Y1: float64(r.Y) * scale,
		X2: float64(r.X+r.Width) * scale,
		Y2: float64(r.Y+r.Height) * scale,
	}
}

// Detect returns salient regions as detections in source pixel coordinates,
// strongest first, with overlapping windows suppressed by IoU.
func (d *SubjectDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	regions, scale, err := d.DetectSubjects(ctx, img)
	if err != nil {
		return nil, err
	}

	maxScore := d.config.ContrastWeight + d.config.ColorWeight
	if maxScore <= 0 {
		maxScore = 1
	}

	dets := make([]types.Detection, 0, len(regions))
	for _, r := range regions {
		dets = append(dets, types.Detection{
			Box:        r.box(scale),
			Confidence: math.Min(1, r.Score/maxScore),
			Label:      SaliencyLabel,
		})
	}
	return dets, nil
}

// DetectSubjects analyzes an image and returns regions of interest in the
// coordinates of the analysed copy, together with the factor that maps them
// back to the source image
func (d *SubjectDetector) DetectSubjects(ctx context.Context, img image.Image) ([]Region, float64, error) {
	work, scale := d.analysisCopy(img)
	width, height := work.Bounds().Dx(), work.Bounds().Dy()

	saliencyMap := d.calculateSaliencyMap(work)

	regions, err := d.findImportantRegions(ctx, saliencyMap, width, height)
	if err != nil {
		return nil, 0, err
	}

	filtered := d.filterAndScoreRegions(regions, width, height)
	filtered = suppress(filtered, d.iouThreshold())

	if d.config.MaxRegions > 0 && len(filtered) > d.config.MaxRegions {
		filtered = filtered[:d.config.MaxRegions]
	}

	return filtered, scale, nil
}

func (d *SubjectDetector) analysisCopy(img image.Image) (*image.NRGBA, float64) {
	b := img.Bounds()
	size := d.config.AnalysisSize
	if size <= 0 || (b.Dx() <= size && b.Dy() <= size) {
		return imaging.Clone(img), 1
	}
	work := imaging.Fit(img, size, size, imaging.Box)
	return work, float64(b.Dx()) / float64(work.Bounds().Dx())
}

func (d *SubjectDetector) iouThreshold() float64 {
	if d.params.IOU > 0 {
		return d.params.IOU
	}
	return 0.5
}

func (d *SubjectDetector) calculateSaliencyMap(img *image.NRGBA) [][]float64 {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	norm := 8.0 * 255.0 * math.Sqrt(3)

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*img.Stride + x*4
			r1, g1, b1 := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])

			// Sobel-like edge strength over the 8 neighbours
			var edgeStrength float64
			for _, offset := range neighbors {
				j := (y+offset[1])*img.Stride + (x+offset[0])*4
				dr := r1 - float64(img.Pix[j])
				dg := g1 - float64(img.Pix[j+1])
				db := b1 - float64(img.Pix[j+2])
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= norm

			brightness := (r1 + g1 + b1) / (3.0 * 255.0)

			saliencyMap[y][x] = d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

func (d *SubjectDetector) findImportantRegions(ctx context.Context, saliencyMap [][]float64, width, height int) ([]Region, error) {
	var regions []Region

	// sliding windows at several scales
	windowSizes := []int{width / 20, width / 16, width / 12, width / 8, width / 4}

	for _, windowSize := range windowSizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if windowSize < 10 {
			continue
		}
		step := max(1, windowSize/8)

		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := calculateRegionScore(saliencyMap, x, y, windowSize, windowSize)

				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{
						X:      x,
						Y:      y,
						Width:  windowSize,
						Height: windowSize,
						Score:  score,
					})
				}
			}
		}
	}

	return regions, nil
}

func calculateRegionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var totalScore float64
	count := 0

	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[0]); rx++ {
			totalScore += saliencyMap[ry][rx]
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return totalScore / float64(count)
}

func (d *SubjectDetector) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	var filtered []Region

	imageArea := imageWidth * imageHeight
	minArea := int(float64(imageArea) * d.config.MinSubjectRatio)

	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return filtered
}

// suppress keeps the strongest of every group of windows overlapping by more
// than threshold; regions must be sorted by descending score
func suppress(regions []Region, threshold float64) []Region {
	kept := make([]Region, 0, len(regions))
	for _, r := range regions {
		overlap := false
		for _, k := range kept {
			if r.box(1).IoU(k.box(1)) > threshold {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, r)
		}
	}
	return kept
}
