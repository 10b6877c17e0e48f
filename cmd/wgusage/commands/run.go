package commands

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blikh/wgusage/internal/web"
)

func Run(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath, logger)
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.ParseLogLevel()}))

	m, st := newMonitor(cfg, logger)
	defer st.Close()

	logger.Info("starting wgusage",
		"interface", cfg.Interface,
		"database", cfg.DatabasePath,
		"collect_interval", cfg.CollectInterval)

	if obs := cfg.ObservabilityHTTP; obs.Addr != "" {
		mux := http.NewServeMux()
		if obs.Pprof {
			// Re-register pprof handlers on our mux (net/http/pprof init registers on DefaultServeMux).
			mux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
		}
		if obs.Metrics {
			mux.Handle("/metrics", promhttp.Handler())
		}
		go func() {
			logger.Info("starting observability server", "addr", obs.Addr, "pprof", obs.Pprof, "metrics", obs.Metrics)
			if err := http.ListenAndServe(obs.Addr, mux); err != nil {
				logger.Error("observability server failed", "err", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Web.Enabled {
		srv := web.New(m, cfg.Web.Listen, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("web server failed", "err", err)
				cancel()
			}
		}()
	}

	interval := time.Duration(cfg.CollectInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// A failed cycle is logged and retried on the next tick; the daemon
	// only stops on a signal.
	collect := func() {
		if _, _, err := m.Collect(time.Now().UTC()); err != nil {
			logger.Error("collection cycle failed", "err", err)
		}
	}
	collect()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			collect()
		}
	}
}
