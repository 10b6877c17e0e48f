package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"
)

func Collect(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath, logger)
	m, st := newMonitor(cfg, logger)
	defer st.Close()

	recorded, failed, err := m.Collect(time.Now().UTC())
	if err != nil {
		logger.Error("collection failed", "err", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded %d peer(s), %d failure(s)\n", recorded, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
