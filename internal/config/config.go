// Package config reads the process-level settings of pdfregress from the
// environment. The per-fixture calibration record lives in package
// calibration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pdfregress/internal/logger"
)

const (
	DefaultConfigPath    = "tests/pdf_regression/calibration.json"
	DefaultRenderTimeout = 60 * time.Second
)

type Config struct {
	// Calibration record location
	ConfigPath string
	RootDir    string

	// Renderer Client
	RenderTimeout time.Duration

	// Page Extractor
	PdftoppmBin  string
	PdftotextBin string
	RasterDPI    int

	// Per-page worker pool size
	Jobs int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		ConfigPath:    getEnv("PDFREGRESS_CONFIG", DefaultConfigPath),
		RootDir:       getEnv("PDFREGRESS_ROOT", "."),
		PdftoppmBin:   getEnv("PDFTOPPM_BIN", "pdftoppm"),
		PdftotextBin:  getEnv("PDFTOTEXT_BIN", "pdftotext"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stderr"),
	}

	var err error
	if config.RenderTimeout, err = getDuration("PDFREGRESS_RENDER_TIMEOUT", DefaultRenderTimeout); err != nil {
		return nil, err
	}
	if config.Jobs, err = getInt("PDFREGRESS_JOBS", 1); err != nil {
		return nil, err
	}
	if config.RasterDPI, err = getInt("PDFREGRESS_DPI", 0); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns the configuration used when the environment is empty.
func Default() *Config {
	return &Config{
		ConfigPath:    DefaultConfigPath,
		RootDir:       ".",
		RenderTimeout: DefaultRenderTimeout,
		PdftoppmBin:   "pdftoppm",
		PdftotextBin:  "pdftotext",
		Jobs:          1,
		LogLevel:      "info",
		LogFormat:     "console",
		LogTimeFormat: "2006-01-02T15:04:05Z07:00",
		LogOutput:     "stderr",
	}
}

func (c *Config) validate() error {
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("PDFREGRESS_RENDER_TIMEOUT must be positive")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("PDFREGRESS_JOBS must be positive")
	}
	if c.RasterDPI < 0 {
		return fmt.Errorf("PDFREGRESS_DPI must not be negative")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}
