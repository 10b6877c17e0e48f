// Package web serves the JSON API over the usage ledger and peer
// registry.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blikh/wgusage/internal/monitor"
)

// Server serves the usage and peer management JSON API.
type Server struct {
	monitor *monitor.Monitor
	listen  string
	logger  *slog.Logger
}

func New(m *monitor.Monitor, listen string, logger *slog.Logger) *Server {
	return &Server{monitor: m, listen: listen, logger: logger}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.listen, err)
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.logger.Info("web server started", "listen", s.listen)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: serve: %w", err)
	}
	return nil
}

// Handler builds the API routing table. Split out from Run so tests can
// drive it through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/usage", s.handleUsage)
	mux.HandleFunc("/api/peers", s.handlePeers)
	mux.HandleFunc("/api/sync", s.handleSync)
	return mux
}

// handleUsage returns usage rows, filtered by the optional public_key
// and month query parameters. monthly=1 switches from accumulated
// totals to month-only deltas.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	entries, err := s.monitor.GetUsage(q.Get("public_key"), q.Get("month"), q.Get("monthly") == "1")
	if err != nil {
		s.logger.Error("usage query failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []monitor.UsageEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type peerResponse struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AddedOn   string `json:"added_on"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPeers(w, r)
	case http.MethodPost:
		s.handleUpsertPeer(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListPeers(w http.ResponseWriter, _ *http.Request) {
	peers, err := s.monitor.ListPeers()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]peerResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerResponse{
			PublicKey: p.PublicKey,
			Name:      p.Name,
			Email:     p.Email,
			AddedOn:   p.AddedOn,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpsertPeer registers a peer or updates its metadata. Omitted
// fields keep their stored values.
func (s *Server) handleUpsertPeer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string  `json:"public_key"`
		Name      *string `json:"name"`
		Email     *string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PublicKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "public_key is required"})
		return
	}

	if err := s.monitor.UpsertPeer(req.PublicKey, req.Name, req.Email); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": req.PublicKey, "status": "ok"})
}

// handleSync runs a reconciliation pass. fix=1 applies the fixes
// instead of only reporting drift.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.monitor.Sync(r.URL.Query().Get("fix") == "1")
	if err != nil {
		s.logger.Error("sync failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
