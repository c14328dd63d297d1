package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	imageredactor "github.com/menta2k/image-redactor"
	"github.com/menta2k/image-redactor/internal/config"
	"github.com/menta2k/image-redactor/pkg/cache"
	"github.com/menta2k/image-redactor/pkg/codec"
	"github.com/menta2k/image-redactor/pkg/detection"
	"github.com/menta2k/image-redactor/pkg/storage"
	"github.com/menta2k/image-redactor/pkg/types"
)

// detectorParams returns the fixed detector parameters of cfg
func detectorParams(cfg *config.Config) types.Params {
	return types.Params{
		Confidence:    cfg.Detector.Confidence,
		IOU:           cfg.Detector.IOU,
		ImageSize:     cfg.Detector.ImageSize,
		Classes:       cfg.Detector.Classes,
		MaxDetections: cfg.Detector.MaxDetections,
	}
}

func detectorConfig(cfg *config.Config, logger logrus.FieldLogger) detection.Config {
	return detection.Config{
		Backend: cfg.Detector.Backend,
		URL:     cfg.Detector.URL,
		Model:   cfg.Detector.Model,
		Prompt:  cfg.Detector.Prompt,
		Timeout: time.Duration(cfg.Detector.TimeoutSeconds) * time.Second,
		Params:  detectorParams(cfg),
		Logger:  logger,
	}
}

// buildDetector creates the configured detector, wrapped in the detection
// cache when one is configured. The returned cleanup releases connections.
func buildDetector(cfg *config.Config, logger logrus.FieldLogger) (detection.Detector, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.WithError(err).Warn("cleanup failed")
			}
		}
	}

	d, err := detection.New(detectorConfig(cfg, logger))
	if err != nil {
		return nil, nil, err
	}
	if c, ok := d.(io.Closer); ok {
		closers = append(closers, c)
	}

	if cfg.Cache.Backend != "" && cfg.Cache.Backend != "none" {
		c, err := cache.New(cache.Options{
			Backend:       cfg.Cache.Backend,
			TTL:           time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries:    cfg.Cache.MaxEntries,
			RedisAddress:  cfg.Cache.RedisAddress,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create detection cache: %w", err)
		}
		closers = append(closers, c)

		namespace := strings.Join([]string{cfg.Detector.Backend, cfg.Detector.URL, cfg.Detector.Model}, "|")
		d = detection.NewCached(d, c, namespace, detectorParams(cfg), logger)
		logger.WithField("backend", cfg.Cache.Backend).Debug("detection cache enabled")
	}

	return d, cleanup, nil
}

func buildRedactor(cfg *config.Config, d detection.Detector, logger logrus.FieldLogger) (*imageredactor.Redactor, error) {
	format, err := codec.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return imageredactor.New(d, imageredactor.Options{
		Format:    format,
		Quality:   cfg.Output.Quality,
		MaxPixels: cfg.Redaction.MaxPixels,
		Logger:    logger,
	}), nil
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	return storage.New(storage.Options{
		Backend: cfg.Storage.Backend,
		Dir:     cfg.Storage.Dir,
		Bucket:  cfg.Storage.Bucket,
		Region:  cfg.Storage.Region,
		Prefix:  cfg.Storage.Prefix,
	})
}
