package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/doc-scanner/internal/logger"
)

// Config holds the application configuration
type Config struct {
	Processing ProcessingConfig `json:"processing"`
	Capture    CaptureConfig    `json:"capture"`
	OCR        OCRConfig        `json:"ocr"`
	Enhance    EnhanceConfig    `json:"enhance"`
	Server     ServerConfig     `json:"server"`
	Store      StoreConfig      `json:"store"`
	Output     OutputConfig     `json:"output"`
	Log        logger.LogConfig `json:"log"`
}

// ProcessingConfig holds configuration for image decoding and encoding
type ProcessingConfig struct {
	JPEGQuality      int      `json:"jpeg_quality"`
	SupportedFormats []string `json:"supported_formats"`
	MinImageSize     int      `json:"min_image_size"`
}

// CaptureConfig holds the preferred camera stream
type CaptureConfig struct {
	FacingMode string `json:"facing_mode"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// OCRConfig selects the recognition backend
type OCRConfig struct {
	Backend         string `json:"backend"` // tesseract, gcv
	Language        string `json:"language"`
	CredentialsJSON string `json:"-"`
	CredentialsFile string `json:"credentials_file,omitempty"`
}

// EnhanceConfig holds configuration for the enhancement client
type EnhanceConfig struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MinLength      int    `json:"min_length"`
}

// Timeout returns the enhancement timeout as a duration
func (e EnhanceConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ServerConfig holds configuration for the enhancement endpoint
type ServerConfig struct {
	Addr          string `json:"addr"`
	Backend       string `json:"backend"` // deepseek, ollama, llamacpp
	Model         string `json:"model"`
	APIKey        string `json:"-"`
	BaseURL       string `json:"base_url,omitempty"`
	RateLimit     int    `json:"rate_limit"`
	WindowSeconds int    `json:"window_seconds"`
	RedisURL      string `json:"redis_url,omitempty"`
}

// Window returns the rate limit window as a duration
func (s ServerConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// StoreConfig holds configuration for scan history
type StoreConfig struct {
	Driver         string `json:"driver"` // memory, postgres
	DatabaseURL    string `json:"-"`
	RetentionHours int    `json:"retention_hours"`
	HistoryLimit   int    `json:"history_limit"`
}

// OutputConfig holds configuration for exported files
type OutputConfig struct {
	OutputDir string `json:"output_dir"`
	// TextFontFile is a UTF-8 TrueType font for PDF text pages; empty means
	// the built-in cp1252 font
	TextFontFile string `json:"text_font_file,omitempty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Processing: ProcessingConfig{
			JPEGQuality:      90,
			SupportedFormats: []string{"jpeg", "jpg", "png", "webp", "gif"},
			MinImageSize:     1,
		},
		Capture: CaptureConfig{
			FacingMode: "environment",
			Width:      1920,
			Height:     1080,
		},
		OCR: OCRConfig{
			Backend:  "tesseract",
			Language: "eng",
		},
		Enhance: EnhanceConfig{
			Enabled:        true,
			TimeoutSeconds: 10,
			MinLength:      10,
		},
		Server: ServerConfig{
			Addr:          ":5000",
			Backend:       "deepseek",
			RateLimit:     10,
			WindowSeconds: 60,
		},
		Store: StoreConfig{
			Driver:         "memory",
			RetentionHours: 24,
			HistoryLimit:   10,
		},
		Output: OutputConfig{
			OutputDir: "./output",
		},
		Log: logger.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file. Secrets are not written.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays values from the environment. Unset variables leave the
// current value; malformed booleans are reported.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("OCR_BACKEND", &c.OCR.Backend)
	str("OCR_LANGUAGE", &c.OCR.Language)
	str("GOOGLE_CREDENTIALS", &c.OCR.CredentialsJSON)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.OCR.CredentialsFile)
	str("ENHANCE_URL", &c.Enhance.URL)
	str("DEEPSEEK_API_KEY", &c.Server.APIKey)
	str("REWRITE_BACKEND", &c.Server.Backend)
	str("REWRITE_MODEL", &c.Server.Model)
	str("REWRITE_URL", &c.Server.BaseURL)
	str("LISTEN_ADDR", &c.Server.Addr)
	str("REDIS_URL", &c.Server.RedisURL)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("STORE_DRIVER", &c.Store.Driver)
	str("OUTPUT_DIR", &c.Output.OutputDir)
	str("PDF_FONT_FILE", &c.Output.TextFontFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_TIME_FORMAT", &c.Log.TimeFormat)
	str("LOG_OUTPUT", &c.Log.Output)

	if v := strings.TrimSpace(getenv("ENHANCE_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENHANCE_ENABLED: %w", err)
		}
		c.Enhance.Enabled = b
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Processing.JPEGQuality < 1 || c.Processing.JPEGQuality > 100 {
		return fmt.Errorf("processing.jpeg_quality must be between 1 and 100")
	}

	if c.Processing.MinImageSize < 1 {
		return fmt.Errorf("processing.min_image_size must be positive")
	}

	if len(c.Processing.SupportedFormats) == 0 {
		return fmt.Errorf("processing.supported_formats cannot be empty")
	}

	if c.Capture.Width < 0 || c.Capture.Height < 0 {
		return fmt.Errorf("capture.width and capture.height cannot be negative")
	}

	switch c.OCR.Backend {
	case "tesseract", "gcv":
	default:
		return fmt.Errorf("ocr.backend must be tesseract or gcv, got %q", c.OCR.Backend)
	}

	if c.OCR.Language == "" {
		return fmt.Errorf("ocr.language cannot be empty")
	}

	if c.Enhance.TimeoutSeconds < 1 {
		return fmt.Errorf("enhance.timeout_seconds must be positive")
	}

	switch c.Server.Backend {
	case "deepseek", "ollama", "llamacpp":
	default:
		return fmt.Errorf("server.backend must be deepseek, ollama or llamacpp, got %q", c.Server.Backend)
	}

	if c.Server.RateLimit < 1 || c.Server.WindowSeconds < 1 {
		return fmt.Errorf("server.rate_limit and server.window_seconds must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.driver postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", c.Store.Driver)
	}

	if c.Store.RetentionHours < 1 || c.Store.HistoryLimit < 1 {
		return fmt.Errorf("store.retention_hours and store.history_limit must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "doc-scanner", "config.json")
}
