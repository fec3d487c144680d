package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-filter-server/internal/config"
	"github.com/ironsheep/image-filter-server/internal/filters"
	"github.com/ironsheep/image-filter-server/internal/logging"
	"github.com/ironsheep/image-filter-server/internal/server"
	"github.com/ironsheep/image-filter-server/internal/store"
)

type serveOptions struct {
	createDB bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		Long: `Serve listens for websocket connections on /api/v1/filters,
/api/v1/filters/stat and /api/v1/filters/apply, and exposes prometheus
metrics on /metrics.

Settings come from defaults, then IMAGE_FILTER_* environment variables,
then flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.String("host", defaults.Host, "Interface to listen on")
	f.Int("port", defaults.Port, "Port to listen on")
	f.String("db", defaults.DatabasePath, "Path to the SQLite usage database")
	f.BoolVar(&opts.createDB, "create-db", false, "Create the usage database if it does not exist")
	f.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	f.String("log-format", defaults.LogFormat, "Log format: console or json")
	f.Duration("read-timeout", defaults.ReadTimeout, "Maximum wait for a client message")
	f.Duration("write-timeout", defaults.WriteTimeout, "Maximum time to send a message")
	f.Int64("max-message-bytes", defaults.MaxMessageBytes, "Largest accepted client message")
	f.Int64("max-pixels", defaults.MaxPixels, "Largest image, in pixels, a filter may decode or produce (0: no limit)")
	f.Duration("shutdown-timeout", defaults.ShutdownTimeout, "Grace period for open sessions on shutdown")
	f.String("upscale-command", "", "Super-resolution command, e.g. \"python3 upscale.py\" (empty: built-in resampling)")
	f.String("model-dir", defaults.Upscale.ModelDir, "Directory holding 2x.pth and 4x.pth")
	f.Duration("upscale-timeout", defaults.Upscale.Timeout, "Maximum run time of one upscale process (0: no limit)")
	f.String("work-dir", "", "Staging directory for upscale files (default: OS temp dir)")
	return cmd
}

// resolveConfig layers defaults, environment and explicitly set flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if f.Changed(name) {
			if err := apply(); err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", name, err))
			}
		}
	}
	set("host", func() (err error) { cfg.Host, err = f.GetString("host"); return })
	set("port", func() (err error) { cfg.Port, err = f.GetInt("port"); return })
	set("db", func() (err error) { cfg.DatabasePath, err = f.GetString("db"); return })
	set("log-level", func() (err error) { cfg.LogLevel, err = f.GetString("log-level"); return })
	set("log-format", func() (err error) { cfg.LogFormat, err = f.GetString("log-format"); return })
	set("read-timeout", func() (err error) { cfg.ReadTimeout, err = f.GetDuration("read-timeout"); return })
	set("write-timeout", func() (err error) { cfg.WriteTimeout, err = f.GetDuration("write-timeout"); return })
	set("max-message-bytes", func() (err error) { cfg.MaxMessageBytes, err = f.GetInt64("max-message-bytes"); return })
	set("max-pixels", func() (err error) { cfg.MaxPixels, err = f.GetInt64("max-pixels"); return })
	set("shutdown-timeout", func() (err error) { cfg.ShutdownTimeout, err = f.GetDuration("shutdown-timeout"); return })
	set("upscale-command", func() error {
		v, err := f.GetString("upscale-command")
		cfg.Upscale.Command = strings.Fields(v)
		return err
	})
	set("model-dir", func() (err error) { cfg.Upscale.ModelDir, err = f.GetString("model-dir"); return })
	set("upscale-timeout", func() (err error) { cfg.Upscale.Timeout, err = f.GetDuration("upscale-timeout"); return })
	set("work-dir", func() (err error) { cfg.Upscale.WorkDir, err = f.GetString("work-dir"); return })
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}

	return cfg, config.Validate(cfg)
}

// openUsageLog opens the usage database, creating it only when asked to.
func openUsageLog(path string, create bool) (*store.Store, error) {
	st, err := store.Open(path)
	if errors.Is(err, store.ErrNotFound) && create {
		log.Info().Str("path", path).Msg("Creating usage database")
		return store.Create(path, kindNames())
	}
	return st, err
}

// newUpscaler selects the external model runner when a command is
// configured and in-process resampling otherwise.
func newUpscaler(c config.Config) filters.Upscaler {
	cfg := c.Upscale
	if len(cfg.Command) == 0 {
		log.Info().Msg("No upscale command configured, using built-in resampling")
		return filters.ResampleUpscaler{MaxPixels: c.MaxPixels}
	}
	p := &filters.ProcessUpscaler{
		Command:  cfg.Command,
		ModelDir: cfg.ModelDir,
		WorkDir:  cfg.WorkDir,
		Timeout:  cfg.Timeout,
	}
	for _, factor := range []int{2, 4} {
		if _, err := os.Stat(p.ModelPath(factor)); err != nil {
			log.Warn().Err(err).Str("model", p.ModelPath(factor)).Msg("Upscale model not found")
		}
	}
	log.Info().Strs("command", cfg.Command).Str("model_dir", cfg.ModelDir).Msg("Using external upscale process")
	return p
}

func runServe(ctx context.Context, cfg config.Config, opts serveOptions) error {
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("commit", GitCommit).
		Msg("Starting image filter server")

	usage, err := openUsageLog(cfg.DatabasePath, opts.createDB)
	if err != nil {
		return fmt.Errorf("open usage database: %w", err)
	}
	defer func() {
		if err := usage.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close usage database")
		}
	}()

	factory := filters.NewFactory(newUpscaler(cfg), filters.WithMaxPixels(cfg.MaxPixels))
	srv := server.New(cfg, usage, factory,
		server.WithLogger(log.Logger),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func kindNames() []string {
	kinds := filters.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
