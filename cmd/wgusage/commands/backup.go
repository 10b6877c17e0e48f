package commands

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/blikh/wgusage/internal/config"
	"github.com/blikh/wgusage/internal/store"
)

func Backup(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	out := fs.String("out", "", "backup file to write (required)")
	password := fs.String("password", "", "encryption password (required)")
	fs.Parse(args)

	if *out == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "error: -out and -password are required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, logger)

	data, err := os.ReadFile(cfg.DatabasePath)
	if err != nil {
		logger.Error("reading database failed", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}

	f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		logger.Error("creating backup file failed", "path", *out, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := store.EncryptBackup(f, bytes.NewReader(data), *password); err != nil {
		logger.Error("encrypting backup failed", "err", err)
		os.Remove(*out)
		os.Exit(1)
	}
	fmt.Printf("Encrypted backup written to %s\n", *out)
}

func Restore(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	in := fs.String("in", "", "backup file to restore from (required)")
	password := fs.String("password", "", "decryption password (required)")
	fs.Parse(args)

	if *in == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "error: -in and -password are required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, logger)
	restoreDatabase(cfg, *in, *password, logger)
	fmt.Printf("Database restored to %s\n", cfg.DatabasePath)
}

func restoreDatabase(cfg *config.Config, in, password string, logger *slog.Logger) {
	data, err := os.ReadFile(in)
	if err != nil {
		logger.Error("reading backup failed", "path", in, "err", err)
		os.Exit(1)
	}
	if !store.IsEncryptedBackup(data) {
		fatalf("error: %s is not an encrypted backup", in)
	}

	var buf bytes.Buffer
	if err := store.DecryptBackup(&buf, data, password); err != nil {
		logger.Error("decrypting backup failed", "err", err)
		os.Exit(1)
	}

	if err := os.WriteFile(cfg.DatabasePath, buf.Bytes(), 0o600); err != nil {
		logger.Error("writing database failed", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
}
