// Package config assembles the pipeline configuration from defaults, an
// optional YAML file and environment variables (highest precedence).
// A .env file next to the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
)

// Config is the full configuration surface of the extractor.
type Config struct {
	// OCR layout-parsing service.
	OCRBaseURL string `yaml:"ocrBaseURL"`

	// Chat-completions service.
	ChatURL    string `yaml:"chatURL"`
	ChatModel  string `yaml:"chatModel"`
	ChatAPIKey string `yaml:"chatAPIKey"`

	// Pipeline.
	Workers   int        `yaml:"workers"` // 0 means min(16, cores*5)
	DPI       int        `yaml:"dpi"`
	ROI       models.ROI `yaml:"roi"`
	Markers   []string   `yaml:"markers"`
	RetryMax  int        `yaml:"retryMax"`
	RetryBase int        `yaml:"retryBaseSeconds"`

	// Outputs.
	CacheJSONDir  string `yaml:"cacheJSONDir"`
	DebugImageDir string `yaml:"debugImageDir"` // empty disables debug images
	ExcelPath     string `yaml:"excelPath"`

	// Logging.
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ChatModel:    "glm-4-plus",
		DPI:          300,
		ROI:          models.ROI{X0: 0.6, Y0: 0.55, X1: 0.85, Y1: 1.0},
		Markers:      []string{"FHM", "GM"},
		RetryMax:     3,
		RetryBase:    5,
		CacheJSONDir: "./cache_json",
		ExcelPath:    "./firedoor_export.xlsx",
		LogLevel:     "info",
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	// Best effort; env vars may come from the process environment.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.OCRBaseURL, "FIREDOOR_OCR_URL")
	setString(&c.ChatURL, "FIREDOOR_CHAT_URL")
	setString(&c.ChatModel, "FIREDOOR_CHAT_MODEL")
	setString(&c.ChatAPIKey, "FIREDOOR_CHAT_API_KEY")
	setInt(&c.Workers, "FIREDOOR_WORKERS")
	setInt(&c.DPI, "FIREDOOR_DPI")
	setInt(&c.RetryMax, "FIREDOOR_RETRY_MAX")
	setInt(&c.RetryBase, "FIREDOOR_RETRY_BASE_SECONDS")
	setString(&c.CacheJSONDir, "FIREDOOR_CACHE_JSON_DIR")
	setString(&c.DebugImageDir, "FIREDOOR_DEBUG_IMAGE_DIR")
	setString(&c.ExcelPath, "FIREDOOR_EXCEL_PATH")
	setString(&c.LogLevel, "FIREDOOR_LOG_LEVEL")
	setString(&c.LogFile, "FIREDOOR_LOG_FILE")
}

// Validate checks the fields the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.OCRBaseURL == "" {
		return fmt.Errorf("config: OCR base URL is required (FIREDOOR_OCR_URL)")
	}
	if c.ChatURL == "" {
		return fmt.Errorf("config: chat completions URL is required (FIREDOOR_CHAT_URL)")
	}
	if c.ChatModel == "" {
		return fmt.Errorf("config: chat model is required (FIREDOOR_CHAT_MODEL)")
	}
	if c.DPI <= 0 {
		return fmt.Errorf("config: dpi must be positive, got %d", c.DPI)
	}
	if !c.ROI.Valid() {
		return fmt.Errorf("config: invalid roi %+v", c.ROI)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("config: retryMax must not be negative, got %d", c.RetryMax)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("config: retryBaseSeconds must be positive, got %d", c.RetryBase)
	}
	return nil
}

// RetryBaseDelay returns the backoff seed as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBase) * time.Second
}
