package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevel(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := New(Options{Level: tt.in}).GetLevel(); got != tt.want {
			t.Errorf("New(%q).GetLevel() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", NoColors: true})
	logger.SetOutput(&buf)

	ctx := ContextWithRequestID(context.Background(), "01HXTEST")
	WithRequestID(logger, ctx).Info("processed")

	if !strings.Contains(buf.String(), "01HXTEST") {
		t.Errorf("expected request id in output, got %q", buf.String())
	}

	buf.Reset()
	WithRequestID(logger, context.Background()).Info("processed")
	if !strings.Contains(buf.String(), "unknown") {
		t.Errorf("expected unknown request id, got %q", buf.String())
	}
}
