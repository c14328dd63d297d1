// Package server exposes the redactor over HTTP.
package server

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	imageredactor "github.com/menta2k/image-redactor"
	"github.com/menta2k/image-redactor/internal/config"
	"github.com/menta2k/image-redactor/pkg/storage"
)

type ServerOption func(*Server) error

type Server struct {
	engine    *fiber.App
	log       *logrus.Logger
	validator *validator.Validate
	redactor  *imageredactor.Redactor
	store     storage.Store
	cfg       *config.Config
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.redactor == nil {
		return nil, fmt.Errorf("redactor is required")
	}
	if server.cfg == nil {
		server.cfg = config.Default()
	}
	if server.engine == nil {
		server.engine = NewFiber(server.cfg.Server, server.log)
	}
	if server.validator == nil {
		server.validator = NewValidator(server.cfg.Server.AllowedExtensions)
	}

	server.registerHandlers()

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithConfig(cfg *config.Config) ServerOption {
	return func(s *Server) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		s.cfg = cfg
		return nil
	}
}

func WithRedactor(redactor *imageredactor.Redactor) ServerOption {
	return func(s *Server) error {
		s.redactor = redactor
		return nil
	}
}

// WithStore persists every result. A nil store disables persistence.
func WithStore(store storage.Store) ServerOption {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

func (s *Server) registerHandlers() {
	s.engine.Use(RequestIDMiddleware())
	s.engine.Use(LoggerMiddleware(s.log))

	router := s.engine.Group("/api")
	router.Get("/health", s.health)

	process := []fiber.Handler{}
	if s.cfg.Server.RateLimit > 0 {
		limiter := newRateLimiter(rate.Limit(s.cfg.Server.RateLimit), s.cfg.Server.RateBurst, s.log)
		process = append(process, limiter.Handle)
	}
	process = append(process, s.process)
	router.Post("/process", process...)
}

// App returns the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.engine
}

// Run listens on the configured address until Shutdown is called
func (s *Server) Run() error {
	addr := s.cfg.Server.Addr()
	s.log.WithField("addr", addr).Info("Starting HTTP server")
	return s.engine.Listen(addr)
}

// Shutdown stops accepting requests and waits for running ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.engine.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
