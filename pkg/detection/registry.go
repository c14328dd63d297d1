package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-redactor/pkg/llamacpp"
	"github.com/menta2k/image-redactor/pkg/log"
	"github.com/menta2k/image-redactor/pkg/ollama"
	"github.com/menta2k/image-redactor/pkg/remote"
	"github.com/menta2k/image-redactor/pkg/types"
	"github.com/menta2k/image-redactor/pkg/vision"
)

// ErrUnknownBackend is returned for a backend name the registry does not know
var ErrUnknownBackend = errors.New("unknown detector backend")

// Backend names
const (
	BackendHTTP     = "http"
	BackendWS       = "ws"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendSaliency = "saliency"
)

// Config describes a detector handle. Params are fixed for the lifetime of
// the handle.
type Config struct {
	Backend string
	URL     string
	Model   string
	Prompt  string
	Timeout time.Duration
	Params  types.Params
	Logger  logrus.FieldLogger
}

// New builds the detector named by cfg.Backend
func New(cfg Config) (Detector, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	switch cfg.Backend {
	case BackendHTTP:
		d, err := remote.NewHTTP(cfg.URL, cfg.Params, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendWS:
		d, err := remote.NewWebSocket(cfg.URL, cfg.Params, cfg.Timeout, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendOllama:
		if cfg.Model == "" {
			return nil, fmt.Errorf("model is required for the %s backend", cfg.Backend)
		}
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return NewVisionDetector(c, cfg.Model, cfg.Prompt, cfg.Params), nil
	case BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return NewVisionDetector(c, cfg.Model, cfg.Prompt, cfg.Params), nil
	case BackendSaliency:
		return Filtered(vision.New(cfg.Params), cfg.Params), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Filtered applies Filter to the output of a backend that does not filter
// on its own
func Filtered(d Detector, p types.Params) Detector {
	return DetectorFunc(func(ctx context.Context, img image.Image) ([]types.Detection, error) {
		dets, err := d.Detect(ctx, img)
		if err != nil {
			return nil, err
		}
		return Filter(dets, p), nil
	})
}
