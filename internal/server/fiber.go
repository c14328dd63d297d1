package server

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-redactor/internal/config"
	"github.com/menta2k/image-redactor/internal/utils"
)

// Headers set on every processed image
const (
	HeaderRegionsRedacted    = "X-Regions-Redacted"
	HeaderStrategyApplied    = "X-Strategy-Applied"
	HeaderStrategyDowngraded = "X-Strategy-Downgraded"
	HeaderResultLocation     = "X-Result-Location"
)

// NewFiber builds the fiber app with the server limits, jsoniter as JSON
// codec and CORS for the browser frontend
func NewFiber(cfg config.ServerConfig, logger *logrus.Logger) *fiber.App {
	bodyLimit := cfg.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 16
	}

	app := fiber.New(
		fiber.Config{
			AppName:       "Image Redactor",
			BodyLimit:     bodyLimit * 1024 * 1024,
			StrictRouting: true,
			CaseSensitive: true,
			JSONEncoder:   jsoniter.Marshal,
			JSONDecoder:   jsoniter.Unmarshal,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				var fe *fiber.Error
				if errors.As(err, &fe) {
					code = fe.Code
				}
				if code >= fiber.StatusInternalServerError {
					logger.WithError(err).WithField("path", c.Path()).Error("Unhandled error")
				}
				return c.Status(code).JSON(fiber.Map{"error": err.Error()})
			},
		})

	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		ExposeHeaders: strings.Join([]string{
			RequestIDKey,
			HeaderRegionsRedacted,
			HeaderStrategyApplied,
			HeaderStrategyDowngraded,
			HeaderResultLocation,
		}, ","),
	}))

	return app
}

// NewValidator returns a validator that knows the image_ext tag, which
// accepts file names with one of the allowed extensions
func NewValidator(allowed []string) *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("image_ext", func(fl validator.FieldLevel) bool {
		return utils.AllowedFile(fl.Field().String(), allowed)
	})
	return v
}
