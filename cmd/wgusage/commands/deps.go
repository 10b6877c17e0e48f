// Package commands implements the wgusage CLI subcommands. Each command
// parses its own flag set and builds the collaborators it needs from the
// shared configuration file.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blikh/wgusage/internal/config"
	"github.com/blikh/wgusage/internal/monitor"
	"github.com/blikh/wgusage/internal/store"
	"github.com/blikh/wgusage/internal/wg"
	"github.com/blikh/wgusage/internal/wgconf"
)

const defaultConfigPath = "/etc/wgusage/config.yaml"

// loadConfig loads the configuration or exits. Commands share one
// failure mode for a broken config file.
func loadConfig(path string, logger *slog.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config", "path", path, "err", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(cfg *config.Config, logger *slog.Logger) *store.Store {
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	return st
}

func newGateway(cfg *config.Config, logger *slog.Logger) wg.Gateway {
	switch cfg.GatewayMode {
	case "wgctrl":
		return wg.NewCtrlGateway(cfg.Interface, logger)
	default:
		return wg.NewExecGateway(cfg.Interface, logger)
	}
}

// newMonitor wires a full monitor from the configuration. The returned
// store must be closed by the caller.
func newMonitor(cfg *config.Config, logger *slog.Logger) (*monitor.Monitor, *store.Store) {
	st := openStore(cfg, logger)
	gw := newGateway(cfg, logger)
	ed := wgconf.NewEditor(cfg.ConfigFile, logger)
	client := monitor.ClientDefaults{Endpoint: cfg.Server.Endpoint, DNS: cfg.Server.DNS}
	return monitor.New(st, gw, ed, cfg.SubnetBase, client, logger), st
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
