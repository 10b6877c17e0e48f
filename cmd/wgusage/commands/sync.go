package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

func Sync(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fix := fs.Bool("fix", false, "apply fixes instead of only reporting drift")
	fs.Parse(args)

	cfg := loadConfig(*configPath, logger)
	m, st := newMonitor(cfg, logger)
	defer st.Close()

	result, err := m.Sync(*fix)
	if err != nil {
		logger.Error("sync failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("Peers in both interface and registry: %d\n", result.InBoth)

	if result.InSync() {
		fmt.Println("Registry and interface are in sync.")
		return
	}

	if len(result.MissingInRegistry) > 0 {
		fmt.Printf("On interface but not in registry (%d):\n", len(result.MissingInRegistry))
		for _, key := range result.MissingInRegistry {
			fmt.Printf("  %s\n", key)
		}
	}
	if len(result.MissingInLive) > 0 {
		fmt.Printf("In registry but not on interface (%d):\n", len(result.MissingInLive))
		for _, key := range result.MissingInLive {
			fmt.Printf("  %s\n", key)
		}
	}

	if *fix {
		fmt.Printf("Applied %d fix(es)\n", result.Fixed)
	} else {
		fmt.Println("Run with -fix to apply fixes.")
	}
}
