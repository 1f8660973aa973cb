package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/kardianos/service"
)

func TestServiceConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		envFile  string
		wantArgs []string
	}{
		{"no env file", "", []string{"service", "run"}},
		{"relative env file", "prod.env", []string{"service", "run", "--env-file", filepath.Join(wd, "prod.env")}},
		{"absolute env file", "/etc/sd_backend.env", []string{"service", "run", "--env-file", "/etc/sd_backend.env"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := serviceConfig(tt.envFile)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Name != serviceName {
				t.Errorf("Name = %q", cfg.Name)
			}
			if !reflect.DeepEqual(cfg.Arguments, tt.wantArgs) {
				t.Errorf("Arguments = %v, want %v", cfg.Arguments, tt.wantArgs)
			}
			if cfg.WorkingDirectory != wd {
				t.Errorf("WorkingDirectory = %q, want %q", cfg.WorkingDirectory, wd)
			}
			if cfg.Option["Restart"] != "on-failure" {
				t.Errorf("Restart option = %v", cfg.Option["Restart"])
			}
		})
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		name   string
		status service.Status
		err    error
		want   string
	}{
		{"running", service.StatusRunning, nil, "Service is running"},
		{"stopped", service.StatusStopped, nil, "Service is stopped"},
		{"unknown", service.StatusUnknown, nil, "Service status unknown"},
		{"not installed", service.StatusUnknown, service.ErrNotInstalled, "Service is not installed"},
		{"wrapped not installed", service.StatusUnknown, errors.Join(errors.New("systemctl"), service.ErrNotInstalled), "Service is not installed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusText(tt.status, tt.err); got != tt.want {
				t.Errorf("statusText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceCommand_Subcommands(t *testing.T) {
	cmd := newServiceCommand(&globalOptions{})

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	want := []string{"install", "restart", "run", "start", "status", "stop", "uninstall"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("subcommands = %v, want %v", names, want)
	}

	run, _, err := cmd.Find([]string{"run"})
	if err != nil {
		t.Fatal(err)
	}
	if !run.Hidden {
		t.Error("run should be hidden")
	}
	for _, flag := range []string{"host", "port", "skip-validation"} {
		if run.Flags().Lookup(flag) == nil {
			t.Errorf("run is missing --%s", flag)
		}
	}

	remove, _, err := cmd.Find([]string{"remove"})
	if err != nil || remove.Name() != "uninstall" {
		t.Errorf("remove alias resolved to %v, err %v", remove, err)
	}
}
