package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-redactor/pkg/cache"
	"github.com/menta2k/image-redactor/pkg/codec"
)

// Config holds the application configuration
type Config struct {
	Detector  DetectorConfig  `json:"detector" yaml:"detector"`
	Redaction RedactionConfig `json:"redaction" yaml:"redaction"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// DetectorConfig selects the detector backend and its fixed parameters
type DetectorConfig struct {
	Backend        string  `json:"backend" yaml:"backend"` // http, ws, ollama, llamacpp, saliency
	URL            string  `json:"url" yaml:"url"`
	Model          string  `json:"model" yaml:"model"`
	Prompt         string  `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Confidence     float64 `json:"confidence" yaml:"confidence"`
	IOU            float64 `json:"iou" yaml:"iou"`
	ImageSize      int     `json:"image_size" yaml:"image_size"`
	Classes        []int   `json:"classes,omitempty" yaml:"classes,omitempty"`
	MaxDetections  int     `json:"max_detections" yaml:"max_detections"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// RedactionConfig holds the default redaction request
type RedactionConfig struct {
	Strategy   string `json:"strategy" yaml:"strategy"` // mosaic or overlay
	MosaicSize int    `json:"mosaic_size" yaml:"mosaic_size"`
	CoverImage string `json:"cover_image,omitempty" yaml:"cover_image,omitempty"`
	MaxPixels  int    `json:"max_pixels" yaml:"max_pixels"` // decode limit for inputs and covers
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format  string `json:"format" yaml:"format"`
	Quality int    `json:"quality" yaml:"quality"`
	Dir     string `json:"dir" yaml:"dir"`
	Prefix  string `json:"prefix" yaml:"prefix"`
	Suffix  string `json:"suffix" yaml:"suffix"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Host              string   `json:"host" yaml:"host"`
	Port              int      `json:"port" yaml:"port"`
	BodyLimitMB       int      `json:"body_limit_mb" yaml:"body_limit_mb"`
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions"`
	AllowOrigins      string   `json:"allow_origins" yaml:"allow_origins"`
	RateLimit         float64  `json:"rate_limit" yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst         int      `json:"rate_burst" yaml:"rate_burst"`
}

// StorageConfig selects where redacted results are persisted
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend"` // none, fs, s3
	Dir     string `json:"dir" yaml:"dir"`
	Bucket  string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
	Prefix  string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// CacheConfig controls caching of detection results
type CacheConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // none, memory, redis
	TTLSeconds    int    `json:"ttl_seconds" yaml:"ttl_seconds"`
	MaxEntries    int    `json:"max_entries" yaml:"max_entries"` // memory backend
	RedisAddress  string `json:"redis_address,omitempty" yaml:"redis_address,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:        "http",
			URL:            "http://localhost:8000/detect",
			Confidence:     0.3,
			IOU:            0.5,
			ImageSize:      640,
			MaxDetections:  300,
			TimeoutSeconds: 60,
		},
		Redaction: RedactionConfig{
			Strategy:   "mosaic",
			MosaicSize: 10,
			MaxPixels:  codec.DefaultMaxPixels,
		},
		Output: OutputConfig{
			Format:  "jpg",
			Quality: 95,
			Dir:     "./results",
			Suffix:  "_redacted",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              5000,
			BodyLimitMB:       16,
			AllowedExtensions: []string{"png", "jpg", "jpeg", "gif", "bmp", "webp"},
			AllowOrigins:      "*",
			RateLimit:         5,
			RateBurst:         10,
		},
		Storage: StorageConfig{
			Backend: "none",
			Dir:     "./results",
		},
		Cache: CacheConfig{
			Backend:    "none",
			TTLSeconds: 3600,
			MaxEntries: cache.DefaultMaxEntries,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by
// extension. Fields missing from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load builds the effective config: defaults <- file <- .env <- environment.
// A missing file is not an error; filename may be empty.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			config = loaded
		}
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv() {
	setString(&c.Detector.Backend, "DETECTOR_BACKEND")
	setString(&c.Detector.URL, "DETECTOR_URL")
	setString(&c.Detector.Model, "DETECTOR_MODEL")
	setFloat(&c.Detector.Confidence, "DETECTOR_CONFIDENCE")
	setFloat(&c.Detector.IOU, "DETECTOR_IOU")
	setInt(&c.Detector.ImageSize, "DETECTOR_IMAGE_SIZE")

	setString(&c.Redaction.Strategy, "REDACTION_STRATEGY")
	setInt(&c.Redaction.MosaicSize, "MOSAIC_SIZE")
	setInt(&c.Redaction.MaxPixels, "MAX_PIXELS")

	setString(&c.Server.Host, "APP_HOST")
	setInt(&c.Server.Port, "APP_PORT")
	setString(&c.Server.AllowOrigins, "CORS_ALLOW_ORIGINS")

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.Bucket, "AWS_BUCKET_NAME")
	setString(&c.Storage.Region, "AWS_REGION")

	setString(&c.Cache.Backend, "CACHE_BACKEND")
	setString(&c.Cache.RedisAddress, "REDIS_ADDRESS")
	setString(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.Cache.RedisDB, "REDIS_DB")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
}

// SaveToFile saves configuration to a YAML or JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case "http", "ws", "ollama", "llamacpp", "saliency":
	default:
		return fmt.Errorf("detector.backend must be one of http, ws, ollama, llamacpp, saliency")
	}

	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		return fmt.Errorf("detector.confidence must be between 0 and 1")
	}

	if c.Detector.IOU < 0 || c.Detector.IOU > 1 {
		return fmt.Errorf("detector.iou must be between 0 and 1")
	}

	if c.Detector.ImageSize < 1 {
		return fmt.Errorf("detector.image_size must be positive")
	}

	if c.Redaction.MosaicSize < 1 {
		return fmt.Errorf("redaction.mosaic_size must be positive")
	}

	if c.Redaction.MaxPixels < 0 {
		return fmt.Errorf("redaction.max_pixels cannot be negative")
	}

	switch strings.ToLower(c.Redaction.Strategy) {
	case "mosaic", "overlay":
	default:
		return fmt.Errorf("redaction.strategy must be mosaic or overlay")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if len(c.Server.AllowedExtensions) == 0 {
		return fmt.Errorf("server.allowed_extensions cannot be empty")
	}

	switch c.Storage.Backend {
	case "none", "fs":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, fs, s3")
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddress == "" {
			return fmt.Errorf("cache.redis_address is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis")
	}

	return nil
}

// Addr returns the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-redactor", "config.yaml")
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
