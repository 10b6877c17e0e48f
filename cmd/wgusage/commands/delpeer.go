package commands

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/blikh/wgusage/internal/monitor"
)

func DeletePeer(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("delete-peer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	email := fs.String("email", "", "delete every peer registered under this email (required)")
	keepHistory := fs.Bool("keep-history", false, "keep recorded usage rows for the deleted peers")
	fs.Parse(args)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "error: -email is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, logger)
	m, st := newMonitor(cfg, logger)
	defer st.Close()

	removals, err := m.DeletePeerByEmail(*email, *keepHistory)
	if err != nil {
		if errors.Is(err, monitor.ErrNoPeersForEmail) {
			fatalf("no peers registered for %s", *email)
		}
		logger.Error("deleting peers failed", "email", *email, "err", err)
		os.Exit(1)
	}

	exitCode := 0
	for _, r := range removals {
		if r.OK() {
			fmt.Printf("Removed %s\n", r.PublicKey)
			if !r.ConfigFound {
				fmt.Printf("  note: %s was not present in the config file\n", r.PublicKey)
			}
			continue
		}
		exitCode = 1
		fmt.Printf("Partial removal of %s:\n", r.PublicKey)
		if r.Interface != nil {
			fmt.Printf("  interface: %v\n", r.Interface)
		}
		if r.Config != nil {
			fmt.Printf("  config:    %v\n", r.Config)
		}
		if r.Registry != nil {
			fmt.Printf("  registry:  %v\n", r.Registry)
		}
	}
	os.Exit(exitCode)
}
