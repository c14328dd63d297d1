package imageredactor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/detection"
	"github.com/menta2k/image-redactor/pkg/redaction"
	"github.com/menta2k/image-redactor/pkg/types"
)

// createTestImage creates a gradient so that every pixel differs from its
// neighbours
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 2), uint8(y * 2), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := codec.EncodeBytes(img, codec.PNG, 0)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return data
}

func decodeNRGBA(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, _, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return imaging.Clone(img)
}

func fixedDetector(boxes ...types.Box) detection.Detector {
	return detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Detection, error) {
		dets := make([]types.Detection, 0, len(boxes))
		for _, b := range boxes {
			dets = append(dets, types.Detection{Box: b, Confidence: 0.9, Label: "face"})
		}
		return dets, nil
	})
}

// changedOutside reports whether any pixel outside r differs between a and b
func changedOutside(a, b *image.NRGBA, r image.Rectangle) bool {
	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if image.Pt(x, y).In(r) {
				continue
			}
			if a.NRGBAAt(x, y) != b.NRGBAAt(x, y) {
				return true
			}
		}
	}
	return false
}

func TestNew(t *testing.T) {
	r := New(fixedDetector(), Options{})
	if r == nil {
		t.Fatal("New() returned nil")
	}
	if r.format != codec.JPEG {
		t.Errorf("expected default format jpeg, got %s", r.format)
	}
	if r.quality != codec.DefaultQuality {
		t.Errorf("expected default quality %d, got %d", codec.DefaultQuality, r.quality)
	}
	if r.driver == nil {
		t.Error("driver is nil")
	}
}

func TestProcessImageScenarios(t *testing.T) {
	src := createTestImage(100, 100)
	raw := encodePNG(t, src)

	tests := []struct {
		name    string
		boxes   []types.Box
		region  image.Rectangle
		regions int
	}{
		{"inside", []types.Box{{X1: 10, Y1: 10, X2: 50, Y2: 50}}, image.Rect(10, 10, 50, 50), 1},
		{"corner overflow", []types.Box{{X1: 90, Y1: 90, X2: 120, Y2: 120}}, image.Rect(90, 90, 100, 100), 1},
		{"zero width", []types.Box{{X1: 50, Y1: 50, X2: 50, Y2: 80}}, image.Rectangle{}, 0},
		{"outside", []types.Box{{X1: 150, Y1: 150, X2: 200, Y2: 200}}, image.Rectangle{}, 0},
		{"mixed", []types.Box{
			{X1: 50, Y1: 50, X2: 50, Y2: 80},
			{X1: 10, Y1: 10, X2: 50, Y2: 50},
		}, image.Rect(10, 10, 50, 50), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(fixedDetector(tt.boxes...), Options{Format: codec.PNG})
			res, err := r.ProcessImage(context.Background(), raw, nil, redaction.KindMosaic, 10)
			if err != nil {
				t.Fatalf("ProcessImage failed: %v", err)
			}
			if res.Regions != tt.regions {
				t.Errorf("expected %d regions, got %d", tt.regions, res.Regions)
			}
			if res.Strategy != redaction.KindMosaic || res.Downgraded {
				t.Errorf("unexpected strategy %s downgraded=%v", res.Strategy, res.Downgraded)
			}
			if res.Width != 100 || res.Height != 100 {
				t.Errorf("dimensions changed to %dx%d", res.Width, res.Height)
			}

			out := decodeNRGBA(t, res.Data)
			if changedOutside(src, out, tt.region) {
				t.Error("pixels outside the redacted region changed")
			}
		})
	}
}

func TestProcessImageMosaicBlocks(t *testing.T) {
	src := createTestImage(100, 100)
	r := New(fixedDetector(types.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}), Options{Format: codec.PNG})

	res, err := r.ProcessImage(context.Background(), encodePNG(t, src), nil, redaction.KindMosaic, 10)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	out := decodeNRGBA(t, res.Data)

	// 40x40 region reduced to 4x4 comes back as a 4x4 grid of 10x10 blocks
	for by := 0; by < 4; by++ {
		for bx := 0; bx < 4; bx++ {
			x0, y0 := 10+bx*10, 10+by*10
			want := out.NRGBAAt(x0, y0)
			for y := y0; y < y0+10; y++ {
				for x := x0; x < x0+10; x++ {
					if got := out.NRGBAAt(x, y); got != want {
						t.Fatalf("block (%d,%d) not uniform at (%d,%d): %v != %v", bx, by, x, y, got, want)
					}
				}
			}
		}
	}
}

func TestProcessImageNoDetections(t *testing.T) {
	src := createTestImage(64, 48)
	r := New(fixedDetector(), Options{Format: codec.PNG})

	res, err := r.ProcessImage(context.Background(), encodePNG(t, src), nil, redaction.KindMosaic, 10)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if res.Regions != 0 {
		t.Errorf("expected no regions, got %d", res.Regions)
	}
	if !bytes.Equal(decodeNRGBA(t, res.Data).Pix, src.Pix) {
		t.Error("expected pixels to be unchanged")
	}
}

func TestProcessImageOverlay(t *testing.T) {
	src := createTestImage(100, 100)
	cover := image.NewNRGBA(image.Rect(0, 0, 7, 3))
	for i := 0; i < len(cover.Pix); i += 4 {
		copy(cover.Pix[i:i+4], []uint8{255, 0, 0, 255})
	}

	r := New(fixedDetector(types.Box{X1: 20, Y1: 30, X2: 60, Y2: 90}), Options{Format: codec.PNG})
	res, err := r.ProcessImage(context.Background(), encodePNG(t, src), encodePNG(t, cover), redaction.KindOverlay, 10)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if res.Strategy != redaction.KindOverlay || res.Downgraded {
		t.Errorf("expected overlay, got %s downgraded=%v", res.Strategy, res.Downgraded)
	}

	out := decodeNRGBA(t, res.Data)
	red := color.NRGBA{255, 0, 0, 255}
	for y := 30; y < 90; y++ {
		for x := 20; x < 60; x++ {
			if got := out.NRGBAAt(x, y); got != red {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, red)
			}
		}
	}
	if changedOutside(src, out, image.Rect(20, 30, 60, 90)) {
		t.Error("pixels outside the cover changed")
	}
}

func TestProcessImageOverlayDowngrade(t *testing.T) {
	raw := encodePNG(t, createTestImage(32, 32))
	r := New(fixedDetector(types.Box{X1: 0, Y1: 0, X2: 16, Y2: 16}), Options{Format: codec.PNG})

	tests := []struct {
		name    string
		cover   []byte
		warning string
	}{
		{"missing cover", nil, "without a usable cover"},
		{"undecodable cover", []byte("definitely not an image"), "could not be decoded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.ProcessImage(context.Background(), raw, tt.cover, redaction.KindOverlay, 4)
			if err != nil {
				t.Fatalf("downgrade must not fail: %v", err)
			}
			if !res.Downgraded || res.Strategy != redaction.KindMosaic {
				t.Errorf("expected mosaic downgrade, got %s downgraded=%v", res.Strategy, res.Downgraded)
			}
			if !strings.Contains(res.Warning, tt.warning) {
				t.Errorf("warning %q does not mention %q", res.Warning, tt.warning)
			}
			if res.Regions != 1 {
				t.Errorf("expected 1 region, got %d", res.Regions)
			}
		})
	}
}

func TestProcessImageTooLarge(t *testing.T) {
	ctx := context.Background()
	r := New(fixedDetector(types.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}), Options{Format: codec.PNG, MaxPixels: 40 * 40})

	_, err := r.ProcessImage(ctx, encodePNG(t, createTestImage(41, 40)), nil, redaction.KindMosaic, 4)
	if !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	var decodeErr *codec.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected *codec.DecodeError, got %T", err)
	}

	// an oversized cover is treated like an undecodable one
	raw := encodePNG(t, createTestImage(40, 40))
	cover := encodePNG(t, createTestImage(80, 80))
	res, err := r.ProcessImage(ctx, raw, cover, redaction.KindOverlay, 4)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if !res.Downgraded || res.Strategy != redaction.KindMosaic {
		t.Errorf("expected downgrade to mosaic, got %+v", res.Strategy)
	}

	unlimited := New(fixedDetector(), Options{Format: codec.PNG, MaxPixels: -1})
	if _, err := unlimited.ProcessImage(ctx, encodePNG(t, createTestImage(300, 300)), nil, redaction.KindMosaic, 4); err != nil {
		t.Errorf("negative MaxPixels should disable the limit: %v", err)
	}
}

func TestProcessImageErrors(t *testing.T) {
	raw := encodePNG(t, createTestImage(16, 16))
	ctx := context.Background()

	r := New(fixedDetector(), Options{})
	for _, size := range []int{0, -1} {
		if _, err := r.ProcessImage(ctx, raw, nil, redaction.KindMosaic, size); !errors.Is(err, redaction.ErrInvalidParameter) {
			t.Errorf("block size %d: expected ErrInvalidParameter, got %v", size, err)
		}
	}

	_, err := r.ProcessImage(ctx, []byte("garbage"), nil, redaction.KindMosaic, 10)
	var decodeErr *codec.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected *codec.DecodeError, got %v", err)
	}

	if _, err := r.ProcessImage(ctx, raw, nil, redaction.Kind(42), 10); !errors.Is(err, redaction.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for unknown strategy, got %v", err)
	}

	failing := New(detection.DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Detection, error) {
		return nil, errors.New("inference server unavailable")
	}), Options{})
	if _, err := failing.ProcessImage(ctx, raw, nil, redaction.KindMosaic, 10); !errors.Is(err, redaction.ErrDetection) {
		t.Errorf("expected ErrDetection, got %v", err)
	}
}

func TestProcessImageJPEG(t *testing.T) {
	r := New(fixedDetector(types.Box{X1: 5, Y1: 5, X2: 40, Y2: 30}), Options{})
	res, err := r.ProcessImage(context.Background(), encodePNG(t, createTestImage(80, 60)), nil, redaction.KindMosaic, 8)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if res.Format != codec.JPEG {
		t.Errorf("expected jpeg output, got %s", res.Format)
	}
	img, name, err := codec.Decode(res.Data)
	if err != nil {
		t.Fatalf("result not decodable: %v", err)
	}
	if name != "jpeg" {
		t.Errorf("expected jpeg, got %s", name)
	}
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 60 {
		t.Errorf("unexpected dimensions %v", img.Bounds())
	}
	if res.SourceCodec != "png" {
		t.Errorf("expected png source, got %s", res.SourceCodec)
	}
}

func TestProcessImageConcurrent(t *testing.T) {
	r := New(fixedDetector(types.Box{X1: 10, Y1: 10, X2: 30, Y2: 30}), Options{Format: codec.PNG})
	raw := encodePNG(t, createTestImage(40, 40))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(size int) {
			defer wg.Done()
			if _, err := r.ProcessImage(context.Background(), raw, nil, redaction.KindMosaic, size); err != nil {
				errs <- err
			}
		}(i + 1)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent ProcessImage failed: %v", err)
	}
}

func TestRedactImage(t *testing.T) {
	src := createTestImage(50, 50)
	r := New(fixedDetector(types.Box{X1: 0, Y1: 0, X2: 25, Y2: 25}), Options{})

	res, err := r.RedactImage(context.Background(), src, redaction.Overlay(nil, 5))
	if err != nil {
		t.Fatalf("RedactImage failed: %v", err)
	}
	if !res.Downgraded || res.Regions != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if changedOutside(src, res.Image, image.Rect(0, 0, 25, 25)) {
		t.Error("pixels outside the region changed")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %s, want %s", GetVersion(), Version)
	}
}

func BenchmarkProcessImage(b *testing.B) {
	src := createTestImage(640, 480)
	raw, _ := codec.EncodeBytes(src, codec.PNG, 0)
	r := New(fixedDetector(
		types.Box{X1: 100, Y1: 100, X2: 300, Y2: 260},
		types.Box{X1: 400, Y1: 50, X2: 600, Y2: 200},
	), Options{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.ProcessImage(context.Background(), raw, nil, redaction.KindMosaic, 10); err != nil {
			b.Fatal(err)
		}
	}
}
