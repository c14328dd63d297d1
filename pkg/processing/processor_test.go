package processing

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{50, 50, 50, 255})
		}
	}
	return img
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()

	b64, err := p.PrepareImageForModel(createTestImage(1280, 640), "jpg", 640, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, format, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg", format)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 320 {
		t.Errorf("expected 640x320, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestDrawDetections(t *testing.T) {
	p := NewProcessor()
	src := createTestImage(100, 100)
	dets := []types.Detection{
		{Box: types.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}, Confidence: 0.9},
		{Box: types.Box{X1: 80, Y1: 80, X2: 150, Y2: 150}, Confidence: 0.3},
	}

	out := p.DrawDetections(src, dets)

	if out.NRGBAAt(10, 30) != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("expected green edge, got %v", out.NRGBAAt(10, 30))
	}
	if out.NRGBAAt(80, 90) != (color.NRGBA{255, 204, 0, 255}) {
		t.Errorf("expected gold edge for low confidence, got %v", out.NRGBAAt(80, 90))
	}
	if out.NRGBAAt(30, 30) != src.NRGBAAt(30, 30) {
		t.Error("box interior should not be painted")
	}
	if src.NRGBAAt(10, 30) != (color.NRGBA{50, 50, 50, 255}) {
		t.Error("source image was modified")
	}
}

func TestReadSource(t *testing.T) {
	data, err := codec.EncodeBytes(createTestImage(8, 8), codec.PNG, 0)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/text" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p := NewProcessor()
	ctx := context.Background()

	img, format, err := p.LoadImageSmart(ctx, srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("LoadImageSmart(url) failed: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 8 {
		t.Errorf("unexpected image %s %v", format, img.Bounds())
	}

	if _, err := p.ReadSource(ctx, srv.URL+"/text"); err == nil {
		t.Error("expected error for non-image content type")
	}

	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	got, err := p.ReadSource(ctx, path)
	if err != nil || len(got) != len(data) {
		t.Errorf("ReadSource(path) = %d bytes, err %v", len(got), err)
	}

	if _, err := p.ReadFromURL(ctx, "ftp://example.com/a.png"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "out.webp")

	if err := p.SaveImage(createTestImage(16, 16), path, "webp", 80); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if _, format, err := codec.Decode(data); err != nil || format != "webp" {
		t.Errorf("saved file decoded as %q, err %v", format, err)
	}

	if err := p.SaveImage(createTestImage(4, 4), path, "psd", 80); err == nil {
		t.Error("expected error for unsupported format")
	}
}
