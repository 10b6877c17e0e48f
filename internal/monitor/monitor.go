// Package monitor wires the usage ledger, peer registry, interface
// gateway and config editor into the operations callers invoke: the
// periodic sampling cycle, peer generation and deletion, and
// registry/interface reconciliation.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/blikh/wgusage/internal/metrics"
	"github.com/blikh/wgusage/internal/store"
	"github.com/blikh/wgusage/internal/wg"
	"github.com/blikh/wgusage/internal/wgconf"
)

// Store is the registry/ledger surface the monitor needs; *store.Store
// implements it.
type Store interface {
	RecordSample(pubKey string, received, sent int64, period string) (recvInc, sentInc int64, err error)
	GetUsage(pubKey, period string, monthlyOnly bool) ([]store.UsageRow, error)
	UpsertPeer(pubKey string, name, email *string) error
	FindByEmail(email string) ([]string, error)
	DeletePeer(pubKey string, keepHistory bool) error
	PublicKeys() (map[string]struct{}, error)
	ListPeers() ([]store.Peer, error)
}

// ConfigEditor is the config-file surface the monitor needs;
// *wgconf.Editor implements it.
type ConfigEditor interface {
	RemovePeer(pubKey string) (found bool, err error)
	AddPeer(pubKey, allowedIPs string) error
	Content() (string, error)
}

// ClientDefaults are the server-side values rendered into generated
// client configurations.
type ClientDefaults struct {
	Endpoint string
	DNS      string
}

// Monitor holds explicit handles to its collaborators; one instance is
// built per process from the loaded configuration.
type Monitor struct {
	store      Store
	gateway    wg.Gateway
	editor     ConfigEditor
	subnetBase string
	client     ClientDefaults
	logger     *slog.Logger
}

func New(st Store, gw wg.Gateway, ed ConfigEditor, subnetBase string, client ClientDefaults, logger *slog.Logger) *Monitor {
	return &Monitor{
		store:      st,
		gateway:    gw,
		editor:     ed,
		subnetBase: subnetBase,
		client:     client,
		logger:     logger,
	}
}

// Collect runs one sampling cycle: snapshot the interface and fold each
// peer's counters into the current month's ledger row. A failed or
// empty snapshot skips the cycle without touching any state. A failure
// on one peer does not stop the others.
func (m *Monitor) Collect(now time.Time) (recorded, failed int, err error) {
	metrics.CollectCyclesTotal.Inc()

	peers, err := m.gateway.Peers()
	if err != nil {
		metrics.CollectSkippedTotal.Inc()
		return 0, 0, fmt.Errorf("monitor: interface snapshot: %w", err)
	}
	if len(peers) == 0 {
		metrics.CollectSkippedTotal.Inc()
		m.logger.Warn("empty interface snapshot, skipping cycle")
		return 0, 0, nil
	}
	metrics.PeersSampled.Set(float64(len(peers)))

	period := now.Format("2006-01")
	for _, p := range peers {
		recvInc, sentInc, err := m.store.RecordSample(p.PublicKey, p.Received, p.Sent, period)
		if err != nil {
			failed++
			metrics.CollectPeerErrorsTotal.Inc()
			m.logger.Error("recording sample failed", "public_key", p.PublicKey, "err", err)
			continue
		}
		metrics.BytesRecordedTotal.WithLabelValues("received").Add(float64(recvInc))
		metrics.BytesRecordedTotal.WithLabelValues("sent").Add(float64(sentInc))
		recorded++
	}

	m.logger.Info("sampling cycle complete", "period", period, "recorded", recorded, "failed", failed)
	return recorded, failed, nil
}

// UsageEntry is a usage row prepared for presentation: unnamed peers
// show as "Unknown" and byte counts come with MB-scaled values.
type UsageEntry struct {
	PublicKey   string  `json:"public_key"`
	Name        string  `json:"name"`
	Email       string  `json:"email,omitempty"`
	Period      string  `json:"month"`
	ReceivedMB  float64 `json:"received_mb"`
	SentMB      float64 `json:"sent_mb"`
	TotalMB     float64 `json:"total_mb"`
	LastUpdated string  `json:"last_updated"`
}

// GetUsage returns usage rows for presentation. With monthlyOnly the
// values are month-only deltas rather than accumulated totals.
func (m *Monitor) GetUsage(pubKey, period string, monthlyOnly bool) ([]UsageEntry, error) {
	rows, err := m.store.GetUsage(pubKey, period, monthlyOnly)
	if err != nil {
		return nil, err
	}

	entries := make([]UsageEntry, 0, len(rows))
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = "Unknown"
		}
		entries = append(entries, UsageEntry{
			PublicKey:   r.PublicKey,
			Name:        name,
			Email:       r.Email,
			Period:      r.Period,
			ReceivedMB:  toMB(r.Received),
			SentMB:      toMB(r.Sent),
			TotalMB:     toMB(r.Received + r.Sent),
			LastUpdated: r.LastUpdated,
		})
	}
	return entries, nil
}

func toMB(b int64) float64 {
	return math.Round(float64(b)/1024/1024*100) / 100
}

// ListPeers returns the registry contents, newest first.
func (m *Monitor) ListPeers() ([]store.Peer, error) {
	return m.store.ListPeers()
}

// UpsertPeer registers a peer or updates its metadata. Nil fields keep
// their stored values.
func (m *Monitor) UpsertPeer(pubKey string, name, email *string) error {
	return m.store.UpsertPeer(pubKey, name, email)
}

// GeneratedPeer describes a freshly provisioned peer and everything a
// client configuration render needs.
type GeneratedPeer struct {
	Name            string
	Email           string
	PrivateKey      string
	PublicKey       string
	Address         string
	ServerPublicKey string
	ServerEndpoint  string
	DNS             string
}

// GeneratePeer provisions a new peer end to end: keypair, address
// allocation, live interface, config file, registry. The flow stops at
// the first failing step and the error names it; steps already
// completed (notably the live-interface addition) are not rolled back,
// so a reconciliation pass may be needed after a partial failure.
func (m *Monitor) GeneratePeer(name, email string) (*GeneratedPeer, error) {
	priv, pub, err := wg.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("monitor: generate peer: keypair: %w", err)
	}

	confText, err := m.editor.Content()
	if err != nil {
		return nil, fmt.Errorf("monitor: generate peer: read config: %w", err)
	}
	addr, err := wgconf.NextIP(m.subnetBase, confText)
	if err != nil {
		return nil, fmt.Errorf("monitor: generate peer: allocate address: %w", err)
	}

	if err := m.gateway.AddPeer(pub, addr); err != nil {
		return nil, fmt.Errorf("monitor: generate peer: apply to interface: %w", err)
	}
	if err := m.editor.AddPeer(pub, addr); err != nil {
		return nil, fmt.Errorf("monitor: generate peer: persist to config: %w", err)
	}

	var emailPtr *string
	if email != "" {
		emailPtr = &email
	}
	if err := m.store.UpsertPeer(pub, &name, emailPtr); err != nil {
		return nil, fmt.Errorf("monitor: generate peer: register: %w", err)
	}

	gp := &GeneratedPeer{
		Name:           name,
		Email:          email,
		PrivateKey:     priv,
		PublicKey:      pub,
		Address:        addr,
		ServerEndpoint: m.client.Endpoint,
		DNS:            m.client.DNS,
	}
	if serverPub, err := m.gateway.PublicKey(); err == nil {
		gp.ServerPublicKey = serverPub
	} else {
		m.logger.Warn("could not read server public key", "err", err)
	}
	if gp.ServerEndpoint == "" {
		if port, err := m.gateway.ListenPort(); err == nil {
			gp.ServerEndpoint = fmt.Sprintf("<SERVER_IP>:%d", port)
		}
	}

	m.logger.Info("peer generated", "name", name, "public_key", pub, "address", addr)
	return gp, nil
}

// ErrNoPeersForEmail reports a delete-by-email request that matched
// nothing in the registry.
var ErrNoPeersForEmail = errors.New("monitor: no peers registered for email")

// PeerRemoval records the per-step outcome of removing one peer. The
// live interface, the config file and the registry are independent
// resources; any of the steps can fail on its own.
type PeerRemoval struct {
	PublicKey   string
	Interface   error
	ConfigFound bool
	Config      error
	Registry    error
}

// OK reports whether every step of the removal succeeded.
func (r PeerRemoval) OK() bool {
	return r.Interface == nil && r.Config == nil && r.Registry == nil
}

// DeletePeerByEmail removes every peer registered under email from the
// live interface, the configuration file and the registry. Each step's
// outcome is reported separately per key; a failure in one step does
// not stop the remaining steps or peers.
func (m *Monitor) DeletePeerByEmail(email string, keepHistory bool) ([]PeerRemoval, error) {
	keys, err := m.store.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPeersForEmail, email)
	}

	removals := make([]PeerRemoval, 0, len(keys))
	for _, key := range keys {
		r := PeerRemoval{PublicKey: key}

		r.Interface = m.gateway.RemovePeer(key)
		if r.Interface != nil {
			m.logger.Error("interface removal failed", "public_key", key, "err", r.Interface)
		}

		r.ConfigFound, r.Config = m.editor.RemovePeer(key)
		if r.Config != nil {
			m.logger.Error("config removal failed", "public_key", key, "err", r.Config)
		}

		r.Registry = m.store.DeletePeer(key, keepHistory)
		if r.Registry != nil {
			m.logger.Error("registry removal failed", "public_key", key, "err", r.Registry)
		}

		removals = append(removals, r)
	}
	return removals, nil
}
