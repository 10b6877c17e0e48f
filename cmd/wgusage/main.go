package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blikh/wgusage/cmd/wgusage/commands"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		commands.Init(os.Args[2:], logger)
	case "run":
		commands.Run(os.Args[2:], logger)
	case "collect":
		commands.Collect(os.Args[2:], logger)
	case "usage":
		commands.Usage(os.Args[2:], logger)
	case "peers":
		commands.Peers(os.Args[2:], logger)
	case "update-peer":
		commands.UpdatePeer(os.Args[2:], logger)
	case "generate-peer":
		commands.GeneratePeer(os.Args[2:], logger)
	case "delete-peer":
		commands.DeletePeer(os.Args[2:], logger)
	case "sync":
		commands.Sync(os.Args[2:], logger)
	case "backup":
		commands.Backup(os.Args[2:], logger)
	case "restore":
		commands.Restore(os.Args[2:], logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: wgusage <command> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  init           Write a starter config and create the database")
	fmt.Fprintln(os.Stderr, "  run            Start the monitoring daemon")
	fmt.Fprintln(os.Stderr, "  collect        Record one usage sample per peer")
	fmt.Fprintln(os.Stderr, "  usage          Show per-peer bandwidth usage")
	fmt.Fprintln(os.Stderr, "  peers          List registered peers")
	fmt.Fprintln(os.Stderr, "  update-peer    Set a peer's name and email")
	fmt.Fprintln(os.Stderr, "  generate-peer  Provision a new peer and print its client config")
	fmt.Fprintln(os.Stderr, "  delete-peer    Remove all peers registered under an email")
	fmt.Fprintln(os.Stderr, "  sync           Reconcile the registry with the live interface")
	fmt.Fprintln(os.Stderr, "  backup         Write an encrypted copy of the database")
	fmt.Fprintln(os.Stderr, "  restore        Restore the database from an encrypted backup")
}
