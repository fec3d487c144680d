// Package config holds the server configuration. Values start from Default,
// may be overridden from IMAGE_FILTER_* environment variables and then by
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "IMAGE_FILTER_"

// Config is the top-level configuration.
type Config struct {
	Host         string
	Port         int
	DatabasePath string

	// Logging.
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "console" or "json"

	// Socket limits. ReadTimeout bounds every wait for a client message.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64

	// MaxPixels bounds the pixel count of any image a filter decodes or
	// produces, upscale results included. 0 disables the limit.
	MaxPixels int64

	ShutdownTimeout time.Duration

	Upscale UpscaleConfig
}

// UpscaleConfig configures the external super-resolution process.
type UpscaleConfig struct {
	// Command is the argv prefix of the model runner. Empty selects
	// in-process resampling.
	Command  []string
	ModelDir string        // holds 2x.pth and 4x.pth
	Timeout  time.Duration // 0 = no limit
	WorkDir  string        // staging root; empty = OS temp dir
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8765,
		DatabasePath:    "usage.db",
		LogLevel:        "info",
		LogFormat:       "console",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 64 << 20,
		MaxPixels:       1 << 26,
		ShutdownTimeout: 10 * time.Second,
		Upscale: UpscaleConfig{
			ModelDir: "models",
			Timeout:  5 * time.Minute,
		},
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadEnv overrides fields from IMAGE_FILTER_* variables that are set.
func (c *Config) LoadEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("HOST", &c.Host)
	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPORT: %w", EnvPrefix, err))
		} else {
			c.Port = port
		}
	}
	str("DATABASE", &c.DatabasePath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	dur("READ_TIMEOUT", &c.ReadTimeout)
	dur("WRITE_TIMEOUT", &c.WriteTimeout)
	dur("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	if v, ok := os.LookupEnv(EnvPrefix + "MAX_MESSAGE_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_MESSAGE_BYTES: %w", EnvPrefix, err))
		} else {
			c.MaxMessageBytes = n
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "MAX_PIXELS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_PIXELS: %w", EnvPrefix, err))
		} else {
			c.MaxPixels = n
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "UPSCALE_COMMAND"); ok {
		c.Upscale.Command = strings.Fields(v)
	}
	str("UPSCALE_MODEL_DIR", &c.Upscale.ModelDir)
	str("UPSCALE_WORK_DIR", &c.Upscale.WorkDir)
	dur("UPSCALE_TIMEOUT", &c.Upscale.Timeout)

	return errors.Join(errs...)
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: Port %d out of range", c.Port)
	}
	if c.DatabasePath == "" {
		return errors.New("config: DatabasePath is required")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: LogFormat must be console or json, got %q", c.LogFormat)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("config: ReadTimeout and WriteTimeout must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("config: MaxMessageBytes must be positive")
	}
	if c.MaxPixels < 0 {
		return errors.New("config: MaxPixels must not be negative")
	}
	if c.Upscale.Timeout < 0 {
		return errors.New("config: Upscale.Timeout must not be negative")
	}
	if len(c.Upscale.Command) > 0 && c.Upscale.ModelDir == "" {
		return errors.New("config: Upscale.ModelDir is required with Upscale.Command")
	}
	return nil
}
