package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"
)

func Usage(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	peer := fs.String("peer", "", "show only this public key")
	month := fs.String("month", "", "show only this month (YYYY-MM, default: current)")
	allMonths := fs.Bool("all", false, "show every recorded month")
	accumulated := fs.Bool("accumulated", false, "show accumulated totals instead of month-only values")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	fs.Parse(args)

	cfg := loadConfig(*configPath, logger)
	m, st := newMonitor(cfg, logger)
	defer st.Close()

	period := *month
	if period == "" && !*allMonths {
		period = time.Now().UTC().Format("2006-01")
	}

	entries, err := m.GetUsage(*peer, period, !*accumulated)
	if err != nil {
		logger.Error("usage query failed", "err", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(entries)
		return
	}

	if len(entries) == 0 {
		fmt.Println("No usage recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMONTH\tRECEIVED (MB)\tSENT (MB)\tTOTAL (MB)\tLAST UPDATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
			e.Name, e.Period, e.ReceivedMB, e.SentMB, e.TotalMB, e.LastUpdated)
	}
	w.Flush()
}
