package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/log"
	"github.com/menta2k/image-redactor/pkg/redaction"
	"github.com/menta2k/image-redactor/pkg/response"
)

var (
	ErrNoImage           = response.NewError(fiber.StatusBadRequest, "no image uploaded")
	ErrNoFileSelected    = response.NewError(fiber.StatusBadRequest, "no file selected")
	ErrUnsupportedFile   = response.NewError(fiber.StatusBadRequest, "unsupported file format")
	ErrUnsupportedCover  = response.NewError(fiber.StatusBadRequest, "unsupported cover image format")
	ErrInvalidMosaicSize = response.NewError(fiber.StatusBadRequest, "mosaic_size must be a positive integer")
	ErrInternalServer    = response.NewError(fiber.StatusInternalServerError, "internal server error")
	ErrProcessingFailed  = response.NewError(fiber.StatusInternalServerError, "image processing failed, the detector may be unavailable")
)

// ProcessRequest is the validated form of POST /api/process
type ProcessRequest struct {
	Filename      string `validate:"required,image_ext"`
	MosaicSize    int    `validate:"min=1"`
	UseMosaic     bool
	CoverFilename string `validate:"omitempty,image_ext"`
}

func (s *Server) process(c *fiber.Ctx) error {
	ctx := c.UserContext()
	logger := log.WithRequestID(s.log, ctx)

	fh, err := c.FormFile("image")
	if err != nil {
		return s.fail(c, ErrNoImage)
	}
	if fh.Filename == "" {
		return s.fail(c, ErrNoFileSelected)
	}

	req, err := s.parseProcessRequest(c, fh)
	if err != nil {
		return s.fail(c, err)
	}

	raw, err := readFormFile(fh)
	if err != nil {
		return s.fail(c, fmt.Errorf("%w: %w", ErrInternalServer, err))
	}

	var cover []byte
	kind := redaction.KindMosaic
	if !req.UseMosaic {
		kind = redaction.KindOverlay
		if coverHeader, err := c.FormFile("overlay_image"); err == nil && coverHeader.Filename != "" {
			if cover, err = readFormFile(coverHeader); err != nil {
				return s.fail(c, fmt.Errorf("%w: %w", ErrInternalServer, err))
			}
		}
	}

	logger.WithFields(log.Fields{
		"filename":    fh.Filename,
		"mosaic_size": req.MosaicSize,
		"strategy":    kind.String(),
	}).Debug("Processing redaction request")

	result, err := s.redactor.ProcessImage(ctx, raw, cover, kind, req.MosaicSize)
	if err != nil {
		return s.fail(c, err)
	}

	if s.store != nil {
		name := fmt.Sprintf("%s_result.%s", uuid.NewString(), result.Format.Extension())
		location, err := s.store.Save(ctx, name, result.Data, result.Format.ContentType())
		if err != nil {
			logger.WithError(err).Warn("Failed to persist result")
		} else {
			c.Set(HeaderResultLocation, location)
		}
	}

	c.Set(HeaderRegionsRedacted, strconv.Itoa(result.Regions))
	c.Set(HeaderStrategyApplied, result.Strategy.String())
	c.Set(HeaderStrategyDowngraded, strconv.FormatBool(result.Downgraded))
	c.Set(fiber.HeaderContentType, result.Format.ContentType())

	return c.Status(fiber.StatusOK).Send(result.Data)
}

func (s *Server) parseProcessRequest(c *fiber.Ctx, fh *multipart.FileHeader) (ProcessRequest, error) {
	req := ProcessRequest{
		Filename:   fh.Filename,
		MosaicSize: s.cfg.Redaction.MosaicSize,
		UseMosaic:  true,
	}
	if req.MosaicSize < 1 {
		req.MosaicSize = redaction.DefaultBlockSize
	}

	if v := strings.TrimSpace(c.FormValue("mosaic_size")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, ErrInvalidMosaicSize
		}
		req.MosaicSize = n
	}
	if v := strings.TrimSpace(c.FormValue("use_mosaic")); v != "" {
		req.UseMosaic = strings.EqualFold(v, "true")
	}
	if !req.UseMosaic {
		if coverHeader, err := c.FormFile("overlay_image"); err == nil {
			req.CoverFilename = coverHeader.Filename
		}
	}

	if err := s.validator.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

// validationError maps validator failures onto the API errors
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return response.Wrap(fiber.StatusBadRequest, err)
	}
	switch fieldErrs[0].StructField() {
	case "Filename":
		return ErrUnsupportedFile
	case "CoverFilename":
		return ErrUnsupportedCover
	case "MosaicSize":
		return ErrInvalidMosaicSize
	default:
		return response.Wrap(fiber.StatusBadRequest, err)
	}
}

// fail writes err as a JSON error with the matching status code
func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	entry := log.WithRequestID(s.log, c.UserContext()).WithFields(log.Fields{
		"error": err.Error(),
		"code":  code,
		"path":  c.Path(),
	})
	if code >= fiber.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	msg := err.Error()
	if errors.Is(err, redaction.ErrDetection) {
		msg = ErrProcessingFailed.Error()
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func statusFor(err error) int {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Code
	}

	var decodeErr *codec.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return fiber.StatusBadRequest
	case errors.Is(err, redaction.ErrInvalidParameter):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
