package monitor

import (
	"fmt"
	"sort"

	"github.com/blikh/wgusage/internal/metrics"
)

// SyncResult is the outcome of one reconciliation pass between the
// live interface peer set and the registry peer set.
type SyncResult struct {
	InBoth            int      `json:"peers_in_both"`
	MissingInRegistry []string `json:"missing_in_registry"`
	MissingInLive     []string `json:"missing_in_live"`
	Fixed             int      `json:"fixed"`
}

// InSync reports whether no drift was found.
func (r *SyncResult) InSync() bool {
	return len(r.MissingInRegistry) == 0 && len(r.MissingInLive) == 0
}

// Sync compares the live interface's peer keys against the registry's.
// It is a pure key-set comparison: metadata differences for keys in
// both sets are not examined. With autoFix, live-only keys get a
// placeholder registry entry and registry-only keys are deleted along
// with their history (stale-peer cleanup, unlike a user-initiated
// delete).
func (m *Monitor) Sync(autoFix bool) (*SyncResult, error) {
	samples, err := m.gateway.Peers()
	if err != nil {
		return nil, fmt.Errorf("monitor: sync: interface snapshot: %w", err)
	}
	liveSet := make(map[string]struct{}, len(samples))
	for _, p := range samples {
		liveSet[p.PublicKey] = struct{}{}
	}

	regSet, err := m.store.PublicKeys()
	if err != nil {
		return nil, fmt.Errorf("monitor: sync: registry keys: %w", err)
	}

	result := &SyncResult{}
	for key := range liveSet {
		if _, ok := regSet[key]; ok {
			result.InBoth++
		} else {
			result.MissingInRegistry = append(result.MissingInRegistry, key)
		}
	}
	for key := range regSet {
		if _, ok := liveSet[key]; !ok {
			result.MissingInLive = append(result.MissingInLive, key)
		}
	}
	sort.Strings(result.MissingInRegistry)
	sort.Strings(result.MissingInLive)

	metrics.ReconcileDrift.WithLabelValues("missing_in_registry").Set(float64(len(result.MissingInRegistry)))
	metrics.ReconcileDrift.WithLabelValues("missing_in_live").Set(float64(len(result.MissingInLive)))

	if !autoFix {
		return result, nil
	}

	for _, key := range result.MissingInRegistry {
		name := "unknown-" + truncateKey(key)
		if err := m.store.UpsertPeer(key, &name, nil); err != nil {
			return result, fmt.Errorf("monitor: sync: register %s: %w", key, err)
		}
		m.logger.Info("registered live-only peer", "public_key", key, "name", name)
		result.Fixed++
	}
	for _, key := range result.MissingInLive {
		if err := m.store.DeletePeer(key, false); err != nil {
			return result, fmt.Errorf("monitor: sync: remove stale %s: %w", key, err)
		}
		m.logger.Info("removed stale registry peer", "public_key", key)
		result.Fixed++
	}
	metrics.ReconcileFixesTotal.Add(float64(result.Fixed))

	return result, nil
}

func truncateKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
