package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blikh/wgusage/internal/store"
)

func Init(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	iface := fs.String("interface", "wg0", "WireGuard interface to monitor")
	dbPath := fs.String("db", "/var/lib/wgusage/usage.db", "path to the usage database")
	subnet := fs.String("subnet", "10.0.1", "first three octets of the peer subnet")
	endpoint := fs.String("endpoint", "", "public server endpoint for client configs (host:port)")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fatalf("error: %s already exists", *configPath)
	}

	content := fmt.Sprintf(`log_level: info
interface: %s
config_file: /etc/wireguard/%s.conf
database_path: %s
subnet_base: %s
gateway_mode: exec
collect_interval: 300
client_config_dir: /etc/wgusage/clients

server:
  endpoint: "%s"
  dns: "1.1.1.1"

web:
  enabled: false
  listen: ":8080"

observability_http:
  addr: ""
  metrics: true
  pprof: false
`, *iface, *iface, *dbPath, *subnet, *endpoint)

	if err := os.MkdirAll(filepath.Dir(*configPath), 0o755); err != nil {
		logger.Error("failed to create config directory", "err", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*configPath, []byte(content), 0o600); err != nil {
		logger.Error("failed to write config", "err", err)
		os.Exit(1)
	}

	// Opening the store creates the schema.
	st, err := store.Open(*dbPath, logger)
	if err != nil {
		logger.Error("failed to create database", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	st.Close()

	fmt.Println("=== wgusage initialized ===")
	fmt.Printf("Config:    %s\n", *configPath)
	fmt.Printf("Database:  %s\n", *dbPath)
	fmt.Printf("Interface: %s\n", *iface)
	fmt.Println()
	fmt.Println("Run 'wgusage collect' to record the first sample.")
}
