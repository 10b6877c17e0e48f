// Package wg talks to the live WireGuard interface: traffic counter
// snapshots, peer add/remove, and interface identity.
package wg

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// PeerSample is one raw counter reading for one peer, as reported by a
// single snapshot of the interface. Samples are consumed immediately by
// the usage ledger and never retained.
type PeerSample struct {
	PublicKey string
	Received  int64
	Sent      int64
}

// Gateway abstracts the live interface. An error from Peers means the
// snapshot is unusable and the caller must skip the cycle; it never
// means "no peers configured".
type Gateway interface {
	Peers() ([]PeerSample, error)
	AddPeer(pubKey, allowedIPs string) error
	RemovePeer(pubKey string) error
	PublicKey() (string, error)
	ListenPort() (int, error)
}

// ExecGateway drives the interface through the wg binary.
type ExecGateway struct {
	iface  string
	logger *slog.Logger
}

func NewExecGateway(iface string, logger *slog.Logger) *ExecGateway {
	return &ExecGateway{iface: iface, logger: logger}
}

// Peers runs `wg show <iface> dump` and parses the per-peer lines.
func (g *ExecGateway) Peers() ([]PeerSample, error) {
	out, err := exec.Command("wg", "show", g.iface, "dump").Output()
	if err != nil {
		return nil, fmt.Errorf("wg: show %s dump: %w", g.iface, err)
	}
	return parseDump(string(out)), nil
}

// parseDump extracts peer samples from the tab-separated dump format.
// Line 0 is interface metadata; peer lines carry the public key in
// field 0 and the received/sent byte counters in fields 5 and 6. Lines
// with fewer than 7 fields or unparseable counters are skipped.
func parseDump(out string) []PeerSample {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}

	var peers []PeerSample
	for _, line := range lines[1:] {
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		rx, err := strconv.ParseInt(parts[5], 10, 64)
		if err != nil {
			continue
		}
		tx, err := strconv.ParseInt(parts[6], 10, 64)
		if err != nil {
			continue
		}
		peers = append(peers, PeerSample{PublicKey: parts[0], Received: rx, Sent: tx})
	}
	return peers
}

// AddPeer applies a peer to the running interface. This does not touch
// the configuration file; persistence is the config editor's job.
func (g *ExecGateway) AddPeer(pubKey, allowedIPs string) error {
	out, err := exec.Command("wg", "set", g.iface, "peer", pubKey, "allowed-ips", allowedIPs).CombinedOutput()
	if err != nil {
		return fmt.Errorf("wg: set peer %s: %w (%s)", pubKey, err, strings.TrimSpace(string(out)))
	}
	g.logger.Info("peer applied to interface", "interface", g.iface, "public_key", pubKey, "allowed_ips", allowedIPs)
	return nil
}

// RemovePeer removes a peer from the running interface.
func (g *ExecGateway) RemovePeer(pubKey string) error {
	out, err := exec.Command("wg", "set", g.iface, "peer", pubKey, "remove").CombinedOutput()
	if err != nil {
		return fmt.Errorf("wg: remove peer %s: %w (%s)", pubKey, err, strings.TrimSpace(string(out)))
	}
	g.logger.Info("peer removed from interface", "interface", g.iface, "public_key", pubKey)
	return nil
}

// PublicKey returns the interface's own public key.
func (g *ExecGateway) PublicKey() (string, error) {
	out, err := exec.Command("wg", "show", g.iface, "public-key").Output()
	if err != nil {
		return "", fmt.Errorf("wg: show %s public-key: %w", g.iface, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ListenPort returns the interface's listening port.
func (g *ExecGateway) ListenPort() (int, error) {
	out, err := exec.Command("wg", "show", g.iface, "listen-port").Output()
	if err != nil {
		return 0, fmt.Errorf("wg: show %s listen-port: %w", g.iface, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("wg: parse listen port: %w", err)
	}
	return port, nil
}
