// Package imageredactor hides sensitive regions of images.
//
// A detector (an inference server, a vision language model or the local
// saliency detector) reports bounding boxes, and every box is either
// pixelated or covered with a caller supplied image. The package ties the
// pieces together behind a single call:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		imageredactor "github.com/menta2k/image-redactor"
//		"github.com/menta2k/image-redactor/pkg/detection"
//		"github.com/menta2k/image-redactor/pkg/redaction"
//	)
//
//	func main() {
//		detector, err := detection.New(detection.Config{
//			Backend: detection.BackendHTTP,
//			URL:     "http://localhost:8000/detect",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		raw, err := os.ReadFile("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		r := imageredactor.New(detector, imageredactor.Options{})
//		res, err := r.ProcessImage(context.Background(), raw, nil, redaction.KindMosaic, 10)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := os.WriteFile("photo_redacted.jpg", res.Data, 0o644); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
// 1. Redaction (pkg/redaction): geometry clamping, mosaic and overlay strategies, the driver
// 2. Detection (pkg/detection): the detector contract and the backend registry
// 3. Codec (pkg/codec): decoding and encoding of jpeg, png, gif, bmp, tiff and webp
//
// Source images are never modified; redaction works on a private copy and
// only pixels inside detected rectangles change.
package imageredactor

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/detection"
	"github.com/menta2k/image-redactor/pkg/log"
	"github.com/menta2k/image-redactor/pkg/redaction"
	"github.com/menta2k/image-redactor/pkg/types"
)

// Version of the image redactor
const Version = "1.0.0"

// Options configures a Redactor. Zero values select JPEG at quality 95 and
// codec.DefaultMaxPixels; a negative MaxPixels disables the decode limit.
type Options struct {
	Format    codec.Format
	Quality   int
	MaxPixels int
	Logger    logrus.FieldLogger
}

// Redactor decodes, redacts and re-encodes images
type Redactor struct {
	driver    *redaction.Driver
	format    codec.Format
	quality   int
	maxPixels int
	logger    logrus.FieldLogger
}

// ProcessResult is the encoded outcome of ProcessImage
type ProcessResult struct {
	Data        []byte
	Format      codec.Format
	Regions     int
	Skipped     int
	Strategy    redaction.Kind
	Downgraded  bool
	Warning     string
	Detections  []types.Detection
	Width       int
	Height      int
	SourceCodec string
}

// New creates a Redactor around a long-lived detector handle
func New(detector detection.Detector, opts Options) *Redactor {
	if opts.Format == "" {
		opts.Format = codec.JPEG
	}
	if opts.Quality <= 0 {
		opts.Quality = codec.DefaultQuality
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = codec.DefaultMaxPixels
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Redactor{
		driver:    redaction.NewDriver(detector),
		format:    opts.Format,
		quality:   opts.Quality,
		maxPixels: opts.MaxPixels,
		logger:    opts.Logger,
	}
}

// ProcessImage decodes raw, redacts every detected region with the requested
// strategy and returns the encoded result. cover is only read for
// redaction.KindOverlay; when it is missing or cannot be decoded the call
// falls back to mosaic and reports it through Downgraded.
func (r *Redactor) ProcessImage(ctx context.Context, raw, cover []byte, kind redaction.Kind, blockSize int) (*ProcessResult, error) {
	if blockSize < 1 {
		return nil, fmt.Errorf("%w: mosaic size must be at least 1, got %d", redaction.ErrInvalidParameter, blockSize)
	}

	img, name, err := codec.DecodeLimited("", raw, r.maxPixels)
	if err != nil {
		return nil, err
	}

	logger := log.WithRequestID(r.logger, ctx)

	strategy, coverWarning := r.strategy(logger, kind, cover, blockSize)
	res, err := r.driver.Run(ctx, img, strategy)
	if err != nil {
		return nil, err
	}

	warning := res.Warning
	if coverWarning != "" {
		warning = coverWarning
	}
	if res.Downgraded {
		logger.WithField("strategy", res.Applied.String()).Warn(warning)
	}

	data, err := codec.EncodeBytes(res.Image, r.format, r.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"regions":  res.Regions,
		"skipped":  res.Skipped,
		"strategy": res.Applied.String(),
	}).Info("image redacted")

	return &ProcessResult{
		Data:        data,
		Format:      r.format,
		Regions:     res.Regions,
		Skipped:     res.Skipped,
		Strategy:    res.Applied,
		Downgraded:  res.Downgraded,
		Warning:     warning,
		Detections:  res.Detections,
		Width:       res.Image.Bounds().Dx(),
		Height:      res.Image.Bounds().Dy(),
		SourceCodec: name,
	}, nil
}

// RedactImage runs detection and redaction on an already decoded image
func (r *Redactor) RedactImage(ctx context.Context, img image.Image, s redaction.Strategy) (*redaction.Result, error) {
	res, err := r.driver.Run(ctx, img, s)
	if err != nil {
		return nil, err
	}
	if res.Downgraded {
		log.WithRequestID(r.logger, ctx).WithField("strategy", res.Applied.String()).Warn(res.Warning)
	}
	return res, nil
}

// strategy builds the redaction strategy for a request. An undecodable
// cover yields an overlay without a cover, which the driver downgrades.
func (r *Redactor) strategy(logger logrus.FieldLogger, kind redaction.Kind, cover []byte, blockSize int) (redaction.Strategy, string) {
	if kind != redaction.KindOverlay {
		return redaction.Strategy{Kind: kind, BlockSize: blockSize}, ""
	}
	if len(cover) == 0 {
		return redaction.Overlay(nil, blockSize), ""
	}

	coverImg, _, err := codec.DecodeLimited("cover", cover, r.maxPixels)
	if err != nil {
		logger.WithError(err).Debug("cover image rejected")
		return redaction.Overlay(nil, blockSize), "cover image could not be decoded, using mosaic"
	}
	return redaction.Overlay(coverImg, blockSize), ""
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
