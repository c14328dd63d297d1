package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Detector.Confidence != 0.3 || cfg.Detector.IOU != 0.5 || cfg.Detector.ImageSize != 640 {
		t.Errorf("unexpected detector defaults %+v", cfg.Detector)
	}
	if cfg.Redaction.MosaicSize != 10 || cfg.Server.Port != 5000 || cfg.Output.Quality != 95 {
		t.Error("unexpected redaction/server/output defaults")
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
detector:
  backend: ollama
  url: http://localhost:11434
  model: qwen2.5vl
redaction:
  mosaic_size: 16
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Detector.Backend != "ollama" || cfg.Detector.Model != "qwen2.5vl" {
		t.Errorf("unexpected detector %+v", cfg.Detector)
	}
	if cfg.Redaction.MosaicSize != 16 {
		t.Errorf("MosaicSize = %d, want 16", cfg.Redaction.MosaicSize)
	}
	// untouched sections keep their defaults
	if cfg.Detector.Confidence != 0.3 || cfg.Server.Port != 5000 {
		t.Error("expected defaults for fields missing from the file")
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Server.Port = 8081
	cfg.Cache.Backend = "memory"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Server.Port != 8081 || loaded.Cache.Backend != "memory" {
		t.Errorf("round trip lost values: %+v %+v", loaded.Server, loaded.Cache)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DETECTOR_BACKEND", "ws")
	t.Setenv("DETECTOR_CONFIDENCE", "0.45")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("MOSAIC_SIZE", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Detector.Backend != "ws" || cfg.Detector.Confidence != 0.45 {
		t.Errorf("unexpected detector %+v", cfg.Detector)
	}
	if cfg.Cache.RedisAddress != "localhost:6379" {
		t.Errorf("RedisAddress = %q", cfg.Cache.RedisAddress)
	}
	if cfg.Redaction.MosaicSize != 10 {
		t.Errorf("invalid env value should be ignored, got %d", cfg.Redaction.MosaicSize)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REDACTOR_TEST_VALUE=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("REDACTOR_TEST_VALUE") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("REDACTOR_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("REDACTOR_TEST_VALUE = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Detector.Backend = "yolo9000" }},
		{"confidence range", func(c *Config) { c.Detector.Confidence = 1.5 }},
		{"mosaic size", func(c *Config) { c.Redaction.MosaicSize = 0 }},
		{"strategy", func(c *Config) { c.Redaction.Strategy = "blur" }},
		{"negative max pixels", func(c *Config) { c.Redaction.MaxPixels = -1 }},
		{"quality", func(c *Config) { c.Output.Quality = 0 }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }},
		{"redis without address", func(c *Config) { c.Cache.Backend = "redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
