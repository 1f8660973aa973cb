// Command sd_backend serves a local Stable Diffusion image-generation API
// and offers a few maintenance commands over the same configuration.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sd_backend/core"
	"sd_backend/logging"
)

const cliName = "sd_backend"

var errValidationFailed = errors.New("startup validation failed")

// globalOptions holds flags shared by every command.
type globalOptions struct {
	EnvFile string

	// exitCode is set by commands that finish without an error but still
	// need a non-zero status, e.g. serve after SIGTERM.
	exitCode int
}

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		return core.ExitCodeError
	}
	return opts.exitCode
}

// newRootCommand builds the command tree. Without a subcommand it serves.
func newRootCommand(opts *globalOptions) *cobra.Command {
	serveOpts := &serveOptions{globalOptions: opts}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: "Local Stable Diffusion image generation service",
		Long: `sd_backend generates images from text prompts with Stable Diffusion
checkpoints stored on this machine and serves them over a JSON API.

Configuration comes from environment variables, optionally loaded from a
.env file. Run "sd_backend serve --help" for the server flags.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnvFile(cmd.ErrOrStderr(), opts.EnvFile)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, serveOpts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "file with KEY=value settings loaded before the environment is read")
	addServeFlags(cmd, serveOpts)

	cmd.AddCommand(
		newServeCommand(opts),
		newModelsCommand(opts),
		newGenerateCommand(opts),
		newHistoryCommand(opts),
		newServiceCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is skipped; an unreadable one is
// reported on stderr.
func loadEnvFile(stderr io.Writer, path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		fmt.Fprintf(stderr, "Warning: could not load %s: %v\n", path, err)
	}
}

// loadConfig reads the configuration and turns a ConfigError into a
// readable message.
func loadConfig() (*core.Config, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		if cfgErr, ok := core.IsConfigError(err); ok {
			return nil, fmt.Errorf("configuration error [%s]: %w", cfgErr.Code, err)
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the console plus rotated-file logger for cfg. LOG_LEVEL
// is applied by logging.NewLogger.
func newLogger(cfg *core.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func logConfig(logger *logging.Logger, cfg *core.Config) {
	logger.Info("Configuration loaded",
		zap.String("models_dir", cfg.ModelsDir),
		zap.String("output_dir", cfg.OutputDir),
		zap.Stringer("thumb_size", cfg.ThumbSize),
		zap.String("addr", cfg.Addr()),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.String("device", cfg.Device),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.String("db_path", cfg.DBPath),
		zap.Int("history_retention_days", cfg.HistoryRetentionDays),
		zap.String("history_cleanup_schedule", cfg.HistoryCleanupSpec),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("dev_mode", cfg.DevMode),
	)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cliName, core.GetVersionInfo())
		},
	}
}
