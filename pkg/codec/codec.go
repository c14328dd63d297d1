// Package codec converts between encoded image bytes and in-memory images.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when encoding to a format we cannot write
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrTooLarge is wrapped in a DecodeError when an image declares more pixels
// than the decode limit
var ErrTooLarge = errors.New("image dimensions exceed limit")

// DefaultQuality is the JPEG/WebP quality used when none is configured
const DefaultQuality = 95

// DefaultMaxPixels caps the decoded size, roughly an 8K x 5K image
const DefaultMaxPixels = 40_000_000

// DecodeError reports bytes that could not be decoded as an image
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode decodes an encoded image. EXIF orientation is applied so detection
// runs on the image as it is displayed. The returned format is the name
// registered by the decoder ("jpeg", "png", "gif", "bmp", "tiff", "webp").
func Decode(data []byte) (image.Image, string, error) {
	return DecodeNamed("", data)
}

// DecodeNamed is Decode with a source name for error messages
func DecodeNamed(source string, data []byte) (image.Image, string, error) {
	return DecodeLimited(source, data, DefaultMaxPixels)
}

// DecodeLimited decodes like DecodeNamed but rejects images whose header
// declares more than maxPixels pixels, before any pixel memory is allocated.
// maxPixels <= 0 disables the check.
func DecodeLimited(source string, data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Source: source, Err: errors.New("empty input")}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		if err := checkSize(cfg, maxPixels); err != nil {
			return nil, "", &DecodeError{Source: source, Err: err}
		}
		var img image.Image
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			return img, format, nil
		}
	}

	// Fallback: explicit WebP decode for variants x/image/webp rejects
	if wcfg, werr := webp.DecodeConfig(bytes.NewReader(data)); werr == nil {
		if err := checkSize(wcfg, maxPixels); err != nil {
			return nil, "", &DecodeError{Source: source, Err: err}
		}
		if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return img, "webp", nil
		}
	}

	return nil, "", &DecodeError{Source: source, Err: err}
}

func checkSize(cfg image.Config, maxPixels int) error {
	if maxPixels <= 0 {
		return nil
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > int64(maxPixels) {
		return fmt.Errorf("%w: %dx%d is more than %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

// Format is an output encoding
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WEBP Format = "webp"
)

// ParseFormat maps a format name or file extension ("jpg", ".png", "webp")
// to a Format
func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	switch s {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "webp":
		return WEBP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Extension returns the canonical file extension, without the dot
func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Encode writes img to w in the given format. quality applies to JPEG and
// lossy WebP and defaults to DefaultQuality when out of range.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	switch format {
	case WEBP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case PNG:
		return imaging.Encode(w, img, imaging.PNG)
	case GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case BMP:
		return imaging.Encode(w, img, imaging.BMP)
	case TIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

// EncodeBytes is Encode into a byte slice
func EncodeBytes(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
