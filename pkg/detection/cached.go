package detection

import (
	"context"
	"encoding/binary"
	"image"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-redactor/pkg/cache"
	"github.com/menta2k/image-redactor/pkg/log"
	"github.com/menta2k/image-redactor/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cached memoizes a detector by image content. Detection with fixed
// parameters is deterministic for the backends we support, so the key is
// the decoded pixels plus the parameters and a namespace naming the backend.
// Cache failures never fail a detection.
type Cached struct {
	inner     Detector
	cache     cache.Cache
	namespace string
	params    []byte
	logger    logrus.FieldLogger
}

// NewCached wraps d with c. namespace should identify the backend and model.
func NewCached(d Detector, c cache.Cache, namespace string, params types.Params, logger logrus.FieldLogger) *Cached {
	if logger == nil {
		logger = log.Discard()
	}
	p, _ := json.Marshal(params)
	return &Cached{inner: d, cache: c, namespace: namespace, params: p, logger: logger}
}

// Detect returns cached detections for img or runs the inner detector
func (c *Cached) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	key := c.Key(img)

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WithError(err).Warn("detection cache read failed")
	} else if ok {
		var dets []types.Detection
		if err := json.Unmarshal(data, &dets); err == nil {
			c.logger.WithField("regions", len(dets)).Debug("detection cache hit")
			return dets, nil
		}
		c.logger.Warn("ignoring undecodable detection cache entry")
	}

	dets, err := c.inner.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(dets); err == nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			c.logger.WithError(err).Warn("detection cache write failed")
		}
	}
	return dets, nil
}

// Key returns the cache key of img
func (c *Cached) Key(img image.Image) string {
	nrgba := imaging.Clone(img)
	size := make([]byte, 8)
	binary.BigEndian.PutUint32(size[:4], uint32(nrgba.Bounds().Dx()))
	binary.BigEndian.PutUint32(size[4:], uint32(nrgba.Bounds().Dy()))
	return cache.HashKey([]byte(c.namespace), c.params, size, nrgba.Pix)
}
