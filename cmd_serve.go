package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sd_backend/core"
)

// serveOptions override the environment for one run.
type serveOptions struct {
	*globalOptions

	Host           string
	Port           int
	SkipValidation bool
}

func addServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVar(&opts.Host, "host", "", "address to bind (overrides HOST)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&opts.SkipValidation, "skip-validation", false, "start without the startup checks")
}

// newServeCommand creates the serve command.
//
// Usage:
//
//	sd_backend serve [--host HOST] [--port PORT] [--skip-validation]
func newServeCommand(globalOpts *globalOptions) *cobra.Command {
	opts := &serveOptions{globalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the image generation API server",
		Long: `Run the HTTP API server in the foreground until SIGINT or SIGTERM.

A first signal starts a graceful shutdown: new generate calls are refused,
running ones finish, history is flushed and temporary files are removed.
A second signal exits immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(cmd, opts)
	return cmd
}

// applyServeFlags copies explicitly set flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, opts *serveOptions, cfg *core.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Host = opts.Host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = opts.Port
	}
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	app, err := prepareServer(cmd, opts, true)
	if err != nil {
		return err
	}
	opts.exitCode = app.run(true)
	return nil
}

// prepareServer loads configuration, validates the environment and wires
// the application. The service host uses it too.
func prepareServer(cmd *cobra.Command, opts *serveOptions, interactive bool) (*application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyServeFlags(cmd, opts, cfg)

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logConfig(logger, cfg)

	if !opts.SkipValidation && !runStartupValidation(cfg, logger, interactive) {
		_ = logger.Sync()
		return nil, &exitError{code: core.ExitCodeError, err: errValidationFailed}
	}

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize image service", zap.Error(err))
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}
