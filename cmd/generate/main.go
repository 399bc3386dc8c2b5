package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dconn.dev/sitegen/internal/config"
	"dconn.dev/sitegen/internal/handlers"
	"dconn.dev/sitegen/internal/logging"
	"dconn.dev/sitegen/internal/site"
	"dconn.dev/sitegen/internal/telemetry"
)

// options holds the global flags
type options struct {
	root       string
	configPath string
	verbose    bool
	jsonLogs   bool
	watch      bool
	trace      bool

	logger   *zap.Logger
	shutdown func(context.Context) error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build the portfolio site into the output directory",
		Long: `Builds the static portfolio site.

Loads data/projects.json and data/filter-tags.json, renders the home, resume,
contact and project pages through web/templates, and copies web/static into
the output directory (dist/ by default). The output directory is removed and
recreated on every build.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.root, "root", ".", "project root that data, templates and output paths are relative to")
	flags.StringVarP(&opts.configPath, "config", "c", "", "site config file (default <root>/site.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "log structured JSON instead of console lines")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "rebuild whenever a source file changes")
	flags.BoolVar(&opts.trace, "trace", false, "print build trace spans to stderr")

	cmd.AddCommand(previewCmd(opts))
	return cmd
}

func (o *options) setup(cmd *cobra.Command) error {
	logger, err := logging.New(logging.Options{Verbose: o.verbose, JSON: o.jsonLogs})
	if err != nil {
		return err
	}
	o.logger = logger

	if o.trace {
		shutdown, err := telemetry.Setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		o.shutdown = shutdown
	}
	return nil
}

func (o *options) teardown() {
	if o.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.shutdown(ctx); err != nil {
			o.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
	if o.logger != nil {
		_ = o.logger.Sync()
	}
}

// loadConfig reads --config, or <root>/site.yaml when that exists
func (o *options) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = filepath.Join(o.root, "site.yaml")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path, o.root)
}

func runBuild(ctx context.Context, opts *options) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	builder := site.NewBuilder(cfg, site.WithLogger(opts.logger))
	if _, err := builder.Build(ctx); err != nil {
		if !opts.watch {
			return err
		}
		// keep watching; the next save may fix it
		opts.logger.Error("build failed", zap.Error(err))
	}

	if !opts.watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := startWatcher(ctx, cfg, builder, opts.logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	return nil
}

func startWatcher(ctx context.Context, cfg *config.Config, builder *site.Builder, logger *zap.Logger) (*site.Watcher, error) {
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	watcher, err := site.NewWatcher(builder, cfg.SourceDirs(), cfg.OutputPath(), debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	logger.Info("watching for changes", zap.Strings("dirs", cfg.SourceDirs()))
	return watcher, nil
}

func previewCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Build the site, then serve the output directory locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerAddr = addr
			}

			builder := site.NewBuilder(cfg, site.WithLogger(opts.logger))
			if _, err := builder.Build(cmd.Context()); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.watch {
				watcher, err := startWatcher(ctx, cfg, builder, opts.logger)
				if err != nil {
					return err
				}
				defer watcher.Stop()
			}

			return serve(ctx, cfg, opts.logger)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "preview server address (default from config, :8080)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handlers.SetupRoutes(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving preview", zap.String("addr", cfg.ServerAddr), zap.String("dir", cfg.OutputPath()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
