package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	"sd_backend/core"
)

const (
	serviceName        = "SDBackend"
	serviceDisplayName = "Stable Diffusion Backend"
	serviceDescription = "Local Stable Diffusion image generation API"
)

// program adapts the application to the service host's Start/Stop calls.
type program struct {
	cmd  *cobra.Command
	opts *serveOptions

	app      *application
	done     chan int
	stopping atomic.Bool
	exitCode int
}

// Start must return quickly; the server runs in the background.
func (p *program) Start(s service.Service) error {
	app, err := prepareServer(p.cmd, p.opts, false)
	if err != nil {
		return err
	}
	p.app = app
	p.done = make(chan int, 1)
	go func() {
		code := app.run(false)
		p.done <- code
		if !p.stopping.Load() && !service.Interactive() {
			// The server stopped on its own; the host only notices when the
			// process exits.
			os.Exit(max(code, core.ExitCodeError))
		}
	}()
	return nil
}

// Stop triggers a graceful shutdown and waits for it.
func (p *program) Stop(s service.Service) error {
	if p.app == nil {
		return nil
	}
	p.stopping.Store(true)
	p.app.manager.Trigger("service stop requested")

	select {
	case p.exitCode = <-p.done:
		return nil
	case <-time.After(p.app.cfg.ShutdownTimeout + 5*time.Second):
		return errors.New("timeout waiting for service to stop")
	}
}

// serviceConfig describes the installed service. The service runs
// "service run" from the directory it was installed in, so relative paths
// in the environment file keep working.
func serviceConfig(envFile string) (*service.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	args := []string{"service", "run"}
	if envFile != "" {
		abs, err := filepath.Abs(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", envFile, err)
		}
		args = append(args, "--env-file", abs)
	}

	return &service.Config{
		Name:             serviceName,
		DisplayName:      serviceDisplayName,
		Description:      serviceDescription,
		Arguments:        args,
		WorkingDirectory: wd,
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}, nil
}

func newService(cmd *cobra.Command, opts *serveOptions) (service.Service, *program, error) {
	cfg, err := serviceConfig(opts.EnvFile)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{cmd: cmd, opts: opts}
	s, err := service.New(prg, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, prg, nil
}

// serviceActions are forwarded to service.Control.
var serviceActions = []struct {
	use     string
	aliases []string
	short   string
	action  string
	done    string
}{
	{"install", nil, "Install as a system service", "install", "Service installed successfully"},
	{"uninstall", []string{"remove"}, "Remove the system service", "uninstall", "Service uninstalled successfully"},
	{"start", nil, "Start the installed service", "start", "Service started successfully"},
	{"stop", nil, "Stop the installed service", "stop", "Service stopped successfully"},
	{"restart", nil, "Restart the installed service", "restart", "Service restarted successfully"},
}

// newServiceCommand creates the service command and its subcommands.
//
// Usage:
//
//	sd_backend service install|uninstall|start|stop|restart|status|run
func newServiceCommand(globalOpts *globalOptions) *cobra.Command {
	opts := &serveOptions{globalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the system service",
		Long: `Install and control sd_backend as a Windows service, a systemd unit or
a launchd job. The installed service runs "sd_backend service run" with the
current directory and --env-file.`,
	}

	for _, a := range serviceActions {
		a := a
		cmd.AddCommand(&cobra.Command{
			Use:     a.use,
			Aliases: a.aliases,
			Short:   a.short,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, _, err := newService(cmd, opts)
				if err != nil {
					return err
				}
				if err := service.Control(s, a.action); err != nil {
					return fmt.Errorf("failed to %s service: %w", a.action, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.done)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := newService(cmd, opts)
			if err != nil {
				return err
			}
			status, err := s.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return fmt.Errorf("failed to get service status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(status, err))
			return nil
		},
	})

	runCmd := &cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, prg, err := newService(cmd, opts)
			if err != nil {
				return err
			}
			if err := s.Run(); err != nil {
				return fmt.Errorf("service run failed: %w", err)
			}
			opts.exitCode = prg.exitCode
			return nil
		},
	}
	addServeFlags(runCmd, opts)
	cmd.AddCommand(runCmd)

	return cmd
}

func statusText(status service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "Service is not installed"
	}
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}
