package server

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/menta2k/image-redactor/pkg/log"
)

const RequestIDKey = "X-Request-ID"

// newRequestID returns a time ordered ULID
func newRequestID(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return ""
	}
	return id.String()
}

// RequestIDMiddleware keeps a client supplied X-Request-ID or generates one,
// and makes it available to handlers through Locals and the user context
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDKey)
		if requestID == "" {
			requestID = newRequestID(time.Now())
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.SetUserContext(log.ContextWithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}

// GetRequestID returns the request id set by RequestIDMiddleware
func GetRequestID(c *fiber.Ctx) string {
	requestID, ok := c.Locals(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}

// LoggerMiddleware writes one access log line per request
func LoggerMiddleware(logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		entry := logger.WithFields(log.Fields{
			"request_id":    GetRequestID(c),
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    time.Since(start).Milliseconds(),
			"ip":            c.IP(),
			"user_agent":    c.Get(fiber.HeaderUserAgent),
			"response_size": len(c.Response().Body()),
		})

		switch {
		case status >= 500:
			entry.Error("Server error")
		case status >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Success")
		}

		return err
	}
}

type rateLimiter struct {
	bucket    map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
	mutex     sync.Mutex
	logger    logrus.FieldLogger
}

func newRateLimiter(reqRate rate.Limit, burstSize int, logger logrus.FieldLogger) *rateLimiter {
	if burstSize < 1 {
		burstSize = 1
	}
	return &rateLimiter{
		bucket:    make(map[string]*rate.Limiter),
		rate:      reqRate,
		burstSize: burstSize,
		logger:    logger,
	}
}

func (r *rateLimiter) limiterFor(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exist := r.bucket[ip]; !exist {
		r.bucket[ip] = rate.NewLimiter(r.rate, r.burstSize)
	}

	return r.bucket[ip]
}

// Handle rejects clients that exceed their request budget
func (r *rateLimiter) Handle(c *fiber.Ctx) error {
	clientIP := c.IP()
	if !r.limiterFor(clientIP).Allow() {
		r.logger.WithField("request_id", GetRequestID(c)).Warnf("too many requests for IP %s", clientIP)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many requests",
		})
	}

	return c.Next()
}
