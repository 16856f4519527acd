// Package config holds the engine and CLI settings: defaults, flag and
// environment binding, and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"leanpdf/observability"
)

type ParsingMode string

const (
	Strict  ParsingMode = "strict"
	Lenient ParsingMode = "lenient"
)

const (
	DefaultZoom          = 2.0
	DefaultFontSize      = 12.0
	DefaultRenderWorkers = 4
	DefaultLogLevel      = "warn"
)

// Config is the full engine configuration the CLI builds a Document
// options set from.
type Config struct {
	ParsingMode   ParsingMode `validate:"oneof=strict lenient"`
	Zoom          float64     `validate:"gt=0,lte=16"`
	FontSize      float64     `validate:"gt=0,lte=144"`
	RenderWorkers int         `validate:"min=1,max=64"`
	LogLevel      string      `validate:"oneof=debug info warn error"`
	Incremental   bool
}

func NewDefault() *Config {
	return &Config{
		ParsingMode:   Lenient,
		Zoom:          DefaultZoom,
		FontSize:      DefaultFontSize,
		RenderWorkers: DefaultRenderWorkers,
		LogLevel:      DefaultLogLevel,
	}
}

// RegisterFlags defines the shared engine flags on fs and binds them
// plus LEANPDF_* environment variables into v.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix("LEANPDF")
	v.AutomaticEnv()

	fs.String("mode", string(cfg.ParsingMode), "Parsing mode: 'strict' fails on corruption, 'lenient' repairs")
	fs.Float64("zoom", cfg.Zoom, "Render scale factor")
	fs.Float64("fontsize", cfg.FontSize, "Inserted text size in points")
	fs.Int("workers", cfg.RenderWorkers, "Parallel page render workers")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("incremental", cfg.Incremental, "Save as incremental update instead of full rewrite")

	for _, name := range []string{"mode", "zoom", "fontsize", "workers", "loglevel", "incremental"} {
		_ = v.BindPFlag(name, fs.Lookup(name))
	}
}

// Load pulls bound values out of v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefault()
	if v.IsSet("mode") {
		cfg.ParsingMode = ParsingMode(v.GetString("mode"))
	}
	if v.IsSet("zoom") {
		cfg.Zoom = v.GetFloat64("zoom")
	}
	if v.IsSet("fontsize") {
		cfg.FontSize = v.GetFloat64("fontsize")
	}
	if v.IsSet("workers") {
		cfg.RenderWorkers = v.GetInt("workers")
	}
	if v.IsSet("loglevel") {
		cfg.LogLevel = v.GetString("loglevel")
	}
	if v.IsSet("incremental") {
		cfg.Incremental = v.GetBool("incremental")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Logger builds the structured logger the configured level asks for.
func (c *Config) Logger() observability.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return observability.NewSlog(slog.New(h))
}

func (c *Config) IsLenient() bool { return c.ParsingMode == Lenient }
