package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported recognition providers
const (
	ProviderGemini   = "gemini"
	ProviderOCRSpace = "ocrspace"
)

// Config: runtime configuration for the relay
type Config struct {
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Recognition Recognition `mapstructure:",squash"`
	Limits      Limits      `mapstructure:",squash"`

	// Comma separated list of allowed origins, empty allows any origin
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Recognition: settings for the external recognition service
type Recognition struct {
	Provider       string        `mapstructure:"recognition_provider" validate:"oneof=gemini ocrspace"`
	APIKey         string        `mapstructure:"recognition_api_key"`
	Endpoint       string        `mapstructure:"recognition_endpoint" validate:"omitempty,url"`
	Model          string        `mapstructure:"recognition_model"`
	Language       string        `mapstructure:"recognition_language" validate:"required"`
	Timeout        time.Duration `mapstructure:"recognition_timeout" validate:"min=0"`
	MinImageLength int           `mapstructure:"min_image_length" validate:"min=0"`
	CacheSize      int           `mapstructure:"result_cache_size" validate:"min=0"`
}

// Limits: connection and message limits. MessagesPerSecond 0 disables per-connection limiting.
type Limits struct {
	MaxMessageSize    int64   `mapstructure:"max_message_size" validate:"min=1024"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second" validate:"min=0"`
	MessageBurst      int     `mapstructure:"message_burst" validate:"min=1"`
}

var defaults = map[string]any{
	"port":                 8080,
	"log_level":            "info",
	"allowed_origins":      "",
	"recognition_provider": ProviderGemini,
	"recognition_api_key":  "",
	"recognition_endpoint": "",
	"recognition_model":    "gemini-1.5-flash",
	"recognition_language": "eng",
	"recognition_timeout":  "0s",
	"min_image_length":     1000,
	"result_cache_size":    128,
	"max_message_size":     10 << 20,
	"messages_per_second":  0.0,
	"message_burst":        30,
}

// Load: reads .env (if present), environment and optional config file into a validated Config
func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	// Older deployments export provider specific key names
	if err := v.BindEnv("recognition_api_key", "RECOGNITION_API_KEY", "GEMINI_API_KEY", "OCR_SPACE_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Recognition.Provider = strings.ToLower(cfg.Recognition.Provider)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate: checks field ranges
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Origins: parsed ALLOWED_ORIGINS list
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// SlogLevel maps LogLevel onto slog levels
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr: listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("'%s' is required", err.Field()))
		case "min", "max", "gt":
			messages = append(messages, fmt.Sprintf("'%s' value out of allowed range", err.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("'%s' must be one of [%s]", err.Field(), err.Param()))
		default:
			messages = append(messages, fmt.Sprintf("'%s' is invalid", err.Field()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}
