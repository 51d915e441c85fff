// Package config loads service configuration from an optional file and
// CAIA_OCR_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/spf13/viper"
)

// Config holds complete service configuration
type Config struct {
	Logging    logging.LogConfig `mapstructure:"logging"`
	Server     ServerConfig      `mapstructure:"server"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Processing ProcessingConfig  `mapstructure:"processing"`
	Model      ModelConfig       `mapstructure:"model"`
	Temporal   TemporalConfig    `mapstructure:"temporal"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	CORSOrigins   string `mapstructure:"cors_origins"`
	MaxUploadSize int    `mapstructure:"max_upload_size"` // bytes
}

// StorageConfig holds filesystem paths
type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
}

// ProcessingConfig holds per-page pipeline settings
type ProcessingConfig struct {
	PdfToTextPath      string        `mapstructure:"pdftotext_path"`
	PdfToPPMPath       string        `mapstructure:"pdftoppm_path"`
	DPI                int           `mapstructure:"dpi"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`  // 0 disables
	ModelTimeout       time.Duration `mapstructure:"model_timeout"` // 0 disables
	ImagePatterns      []string      `mapstructure:"image_patterns"`
	PureGoTextFallback bool          `mapstructure:"pure_go_text_fallback"`
	PageLocks          bool          `mapstructure:"page_locks"`
}

// ModelConfig selects and configures the OCR model
type ModelConfig struct {
	Provider    string `mapstructure:"provider"` // gemini, tesseract
	Name        string `mapstructure:"name"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	OCRLanguage string `mapstructure:"ocr_language"`
	// MinInterval spaces consecutive model calls; 0 only applies error backoff
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// TemporalConfig controls the optional document workflow worker
type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration. An empty path searches ./config and the working
// directory for config.{json,yaml}; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CAIA_OCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the service cannot run without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.UploadDir) == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}
	if c.Processing.DPI <= 0 {
		return fmt.Errorf("processing.dpi must be greater than zero")
	}
	switch c.Model.Provider {
	case "gemini", "tesseract":
	default:
		return fmt.Errorf("model.provider must be gemini or tesseract, got %q", c.Model.Provider)
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required when temporal is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := logging.DefaultLogConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.format", def.Format)
	v.SetDefault("logging.output_file", def.OutputFile)
	v.SetDefault("logging.console", def.Console)

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.max_upload_size", 50*1024*1024)

	v.SetDefault("storage.upload_dir", "./uploads")

	v.SetDefault("processing.pdftotext_path", "pdftotext")
	v.SetDefault("processing.pdftoppm_path", "pdftoppm")
	v.SetDefault("processing.dpi", 300)
	v.SetDefault("processing.tool_timeout", 2*time.Minute)
	v.SetDefault("processing.model_timeout", 90*time.Second)
	v.SetDefault("processing.image_patterns", []string{})
	v.SetDefault("processing.pure_go_text_fallback", true)
	v.SetDefault("processing.page_locks", false)

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.name", "gemini-1.5-flash-8b-001")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.ocr_language", "eng")
	v.SetDefault("model.min_interval", time.Duration(0))

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.task_queue", "caia-ocr")
}
