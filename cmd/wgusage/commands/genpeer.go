package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/blikh/wgusage/internal/monitor"
)

func GeneratePeer(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("generate-peer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	name := fs.String("name", "", "peer display name (required)")
	email := fs.String("email", "", "peer email")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: -name is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, logger)
	m, st := newMonitor(cfg, logger)
	defer st.Close()

	gp, err := m.GeneratePeer(*name, *email)
	if err != nil {
		logger.Error("generating peer failed", "name", *name, "err", err)
		os.Exit(1)
	}

	confText := buildClientConf(gp)

	fmt.Println("=== Peer generated ===")
	fmt.Printf("Name:       %s\n", gp.Name)
	fmt.Printf("Public Key: %s\n", gp.PublicKey)
	fmt.Printf("Address:    %s\n", gp.Address)
	fmt.Println()
	fmt.Println(confText)

	if cfg.ClientConfigDir != "" {
		if err := os.MkdirAll(cfg.ClientConfigDir, 0o700); err != nil {
			logger.Error("creating client config dir failed", "dir", cfg.ClientConfigDir, "err", err)
			return
		}
		path := filepath.Join(cfg.ClientConfigDir, sanitizeFilename(gp.Name)+".conf")
		if err := os.WriteFile(path, []byte(confText), 0o600); err != nil {
			logger.Error("saving client config failed", "path", path, "err", err)
			return
		}
		fmt.Printf("Saved to %s\n", path)
	}
}

// buildClientConf renders the WireGuard client configuration for a
// freshly generated peer.
func buildClientConf(gp *monitor.GeneratedPeer) string {
	clientIP := strings.Split(gp.Address, "/")[0]

	var b strings.Builder
	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", gp.PrivateKey)
	fmt.Fprintf(&b, "Address = %s/24\n", clientIP)
	if gp.DNS != "" {
		fmt.Fprintf(&b, "DNS = %s\n", gp.DNS)
	}
	fmt.Fprintf(&b, "\n[Peer]\n")
	if gp.ServerPublicKey != "" {
		fmt.Fprintf(&b, "PublicKey = %s\n", gp.ServerPublicKey)
	} else {
		fmt.Fprintf(&b, "PublicKey = <SERVER_PUBLIC_KEY>\n")
	}
	fmt.Fprintf(&b, "Endpoint = %s\n", gp.ServerEndpoint)
	fmt.Fprintf(&b, "AllowedIPs = 0.0.0.0/0\n")
	fmt.Fprintf(&b, "PersistentKeepalive = 25\n")
	return b.String()
}

func sanitizeFilename(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", "_"))
}
