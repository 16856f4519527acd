package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := NewDefault()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Lenient, cfg.ParsingMode)
	assert.Equal(t, 2.0, cfg.Zoom)
	assert.True(t, cfg.IsLenient())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero zoom":     func(c *Config) { c.Zoom = 0 },
		"huge zoom":     func(c *Config) { c.Zoom = 100 },
		"bad mode":      func(c *Config) { c.ParsingMode = "sloppy" },
		"zero workers":  func(c *Config) { c.RenderWorkers = 0 },
		"bad log level": func(c *Config) { c.LogLevel = "verbose" },
	}
	for name, mutate := range cases {
		cfg := NewDefault()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestLoadFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	RegisterFlags(fs, v, NewDefault())
	require.NoError(t, fs.Parse([]string{"--mode=strict", "--zoom=1.5", "--workers=2"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Strict, cfg.ParsingMode)
	assert.Equal(t, 1.5, cfg.Zoom)
	assert.Equal(t, 2, cfg.RenderWorkers)
	assert.Equal(t, DefaultFontSize, cfg.FontSize)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LEANPDF_LOGLEVEL", "debug")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	RegisterFlags(fs, v, NewDefault())
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NotNil(t, cfg.Logger())
}

func TestLoadRejectsInvalidFlagValue(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	RegisterFlags(fs, v, NewDefault())
	require.NoError(t, fs.Parse([]string{"--zoom=-2"}))

	_, err := Load(v)
	assert.Error(t, err)
}
