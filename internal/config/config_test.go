package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, Validate(c))
	assert.Equal(t, "0.0.0.0:8765", c.Addr())
	assert.Empty(t, c.Upscale.Command)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("IMAGE_FILTER_HOST", "127.0.0.1")
	t.Setenv("IMAGE_FILTER_PORT", "9000")
	t.Setenv("IMAGE_FILTER_DATABASE", "/var/lib/filters.db")
	t.Setenv("IMAGE_FILTER_LOG_LEVEL", "debug")
	t.Setenv("IMAGE_FILTER_READ_TIMEOUT", "5s")
	t.Setenv("IMAGE_FILTER_MAX_MESSAGE_BYTES", "1024")
	t.Setenv("IMAGE_FILTER_MAX_PIXELS", "4000000")
	t.Setenv("IMAGE_FILTER_UPSCALE_COMMAND", "python3  upscale.py")
	t.Setenv("IMAGE_FILTER_UPSCALE_TIMEOUT", "90s")

	c := Default()
	require.NoError(t, c.LoadEnv())

	assert.Equal(t, "127.0.0.1:9000", c.Addr())
	assert.Equal(t, "/var/lib/filters.db", c.DatabasePath)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 5*time.Second, c.ReadTimeout)
	assert.Equal(t, 10*time.Second, c.WriteTimeout)
	assert.Equal(t, int64(1024), c.MaxMessageBytes)
	assert.Equal(t, int64(4000000), c.MaxPixels)
	assert.Equal(t, []string{"python3", "upscale.py"}, c.Upscale.Command)
	assert.Equal(t, 90*time.Second, c.Upscale.Timeout)
	assert.Equal(t, "models", c.Upscale.ModelDir)
}

func TestLoadEnv_Invalid(t *testing.T) {
	t.Setenv("IMAGE_FILTER_PORT", "http")
	t.Setenv("IMAGE_FILTER_WRITE_TIMEOUT", "soon")

	c := Default()
	err := c.LoadEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAGE_FILTER_PORT")
	assert.Contains(t, err.Error(), "IMAGE_FILTER_WRITE_TIMEOUT")
	assert.Equal(t, 8765, c.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 70000 }},
		{"database", func(c *Config) { c.DatabasePath = "" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"read timeout", func(c *Config) { c.ReadTimeout = 0 }},
		{"message size", func(c *Config) { c.MaxMessageBytes = 0 }},
		{"pixel limit", func(c *Config) { c.MaxPixels = -1 }},
		{"upscale timeout", func(c *Config) { c.Upscale.Timeout = -time.Second }},
		{"model dir", func(c *Config) { c.Upscale.Command = []string{"esrgan"}; c.Upscale.ModelDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, Validate(c))
		})
	}
}
