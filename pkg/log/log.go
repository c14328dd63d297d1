package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields = logrus.Fields

type ctxKey struct{}

// Options configures a logger
type Options struct {
	Level      string // debug, info, warn, error
	File       string // rotated log file, empty disables the file sink
	NoColors   bool
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Output     io.Writer // console sink, os.Stderr when nil
}

// New builds a logrus logger writing nested-format lines to stderr and,
// unless APP_ENV=test, to a lumberjack-rotated file.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			if opts.NoColors {
				return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
			}
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	console := opts.Output
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}
	if opts.File != "" && os.Getenv("APP_ENV") != "test" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetReportCaller(level >= logrus.DebugLevel)

	return logger
}

// Discard returns a logger that drops everything, for tests and library use
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ContextWithRequestID stores a request id for WithRequestID
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request id stored in ctx, or ""
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithRequestID returns an entry tagged with the request id carried by ctx
func WithRequestID(logger logrus.FieldLogger, ctx context.Context) *logrus.Entry {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}
	return logger.WithField("request_id", requestID)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
