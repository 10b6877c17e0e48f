package commands

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
)

func Peers(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("peers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath, logger)
	st := openStore(cfg, logger)
	defer st.Close()

	peers, err := st.ListPeers()
	if err != nil {
		logger.Error("listing peers failed", "err", err)
		os.Exit(1)
	}
	if len(peers) == 0 {
		fmt.Println("No peers registered.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tPUBLIC KEY\tADDED")
	for _, p := range peers {
		name := p.Name
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, p.Email, p.PublicKey, p.AddedOn)
	}
	w.Flush()
}

func UpdatePeer(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("update-peer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	key := fs.String("key", "", "peer public key (required)")
	name := fs.String("name", "", "display name to set")
	email := fs.String("email", "", "email to set")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintln(os.Stderr, "error: -key is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, logger)
	st := openStore(cfg, logger)
	defer st.Close()

	var namePtr, emailPtr *string
	if *name != "" {
		namePtr = name
	}
	if *email != "" {
		emailPtr = email
	}

	if err := st.UpsertPeer(*key, namePtr, emailPtr); err != nil {
		logger.Error("updating peer failed", "public_key", *key, "err", err)
		os.Exit(1)
	}
	fmt.Printf("Peer %s updated\n", *key)
}
