package monitor

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blikh/wgusage/internal/store"
	"github.com/blikh/wgusage/internal/wg"
	"github.com/blikh/wgusage/internal/wgconf"
)

type fakeGateway struct {
	peers     []wg.PeerSample
	peersErr  error
	addErr    error
	removeErr error
	added     map[string]string
	removed   []string
	pubKey    string
	port      int
}

func (g *fakeGateway) Peers() ([]wg.PeerSample, error) {
	return g.peers, g.peersErr
}

func (g *fakeGateway) AddPeer(pubKey, allowedIPs string) error {
	if g.addErr != nil {
		return g.addErr
	}
	if g.added == nil {
		g.added = make(map[string]string)
	}
	g.added[pubKey] = allowedIPs
	return nil
}

func (g *fakeGateway) RemovePeer(pubKey string) error {
	if g.removeErr != nil {
		return g.removeErr
	}
	g.removed = append(g.removed, pubKey)
	return nil
}

func (g *fakeGateway) PublicKey() (string, error) {
	if g.pubKey == "" {
		return "", errors.New("no key")
	}
	return g.pubKey, nil
}

func (g *fakeGateway) ListenPort() (int, error) {
	return g.port, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "usage.db"), testLogger())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEditor(t *testing.T, content string) (*wgconf.Editor, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wg0.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return wgconf.NewEditor(path, testLogger()), path
}

func testMonitor(t *testing.T, st Store, gw wg.Gateway, ed ConfigEditor) *Monitor {
	t.Helper()
	client := ClientDefaults{Endpoint: "vpn.example.com:51820", DNS: "1.1.1.1"}
	return New(st, gw, ed, "10.0.1", client, testLogger())
}

func TestCollectRecordsSamples(t *testing.T) {
	st := testStore(t)
	gw := &fakeGateway{peers: []wg.PeerSample{
		{PublicKey: "pkA", Received: 100, Sent: 200},
		{PublicKey: "pkB", Received: 300, Sent: 400},
	}}
	m := testMonitor(t, st, gw, nil)

	recorded, failed, err := m.Collect(time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if recorded != 2 || failed != 0 {
		t.Fatalf("recorded=%d failed=%d, want 2/0", recorded, failed)
	}

	entries, err := m.GetUsage("", "2025-08", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		// Auto-registered peers have no metadata yet.
		if e.Name != "Unknown" {
			t.Errorf("peer %s: name %q, want Unknown", e.PublicKey, e.Name)
		}
	}
}

func TestCollectSkipsCycleOnGatewayError(t *testing.T) {
	st := testStore(t)
	gw := &fakeGateway{peersErr: errors.New("wg not running")}
	m := testMonitor(t, st, gw, nil)

	if _, _, err := m.Collect(time.Now()); err == nil {
		t.Fatal("want error from failed snapshot")
	}

	entries, err := m.GetUsage("", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("failed snapshot must not touch the ledger, got %d rows", len(entries))
	}
}

func TestCollectSkipsCycleOnEmptySnapshot(t *testing.T) {
	st := testStore(t)
	m := testMonitor(t, st, &fakeGateway{}, nil)

	recorded, failed, err := m.Collect(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if recorded != 0 || failed != 0 {
		t.Fatalf("recorded=%d failed=%d, want 0/0", recorded, failed)
	}
}

// flakyStore fails RecordSample for one key and delegates the rest.
type flakyStore struct {
	*store.Store
	failKey string
}

func (f *flakyStore) RecordSample(pubKey string, received, sent int64, period string) (int64, int64, error) {
	if pubKey == f.failKey {
		return 0, 0, errors.New("injected failure")
	}
	return f.Store.RecordSample(pubKey, received, sent, period)
}

func TestCollectIsolatesPerPeerFailures(t *testing.T) {
	st := &flakyStore{Store: testStore(t), failKey: "pkBad"}
	gw := &fakeGateway{peers: []wg.PeerSample{
		{PublicKey: "pkBad", Received: 1, Sent: 1},
		{PublicKey: "pkGood", Received: 100, Sent: 200},
	}}
	m := testMonitor(t, st, gw, nil)

	recorded, failed, err := m.Collect(time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if recorded != 1 || failed != 1 {
		t.Fatalf("recorded=%d failed=%d, want 1/1", recorded, failed)
	}

	entries, err := m.GetUsage("pkGood", "2025-08", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("pkGood must still be recorded, got %d rows", len(entries))
	}
}

func TestSyncReportsDrift(t *testing.T) {
	st := testStore(t)
	name := "b"
	if err := st.UpsertPeer("B", &name, nil); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertPeer("C", &name, nil); err != nil {
		t.Fatal(err)
	}
	gw := &fakeGateway{peers: []wg.PeerSample{
		{PublicKey: "A"}, {PublicKey: "B"},
	}}
	m := testMonitor(t, st, gw, nil)

	result, err := m.Sync(false)
	if err != nil {
		t.Fatal(err)
	}
	if result.InSync() {
		t.Fatal("drift expected")
	}
	if len(result.MissingInRegistry) != 1 || result.MissingInRegistry[0] != "A" {
		t.Fatalf("missing_in_registry: %v, want [A]", result.MissingInRegistry)
	}
	if len(result.MissingInLive) != 1 || result.MissingInLive[0] != "C" {
		t.Fatalf("missing_in_live: %v, want [C]", result.MissingInLive)
	}
	if result.InBoth != 1 {
		t.Fatalf("in_both: %d, want 1", result.InBoth)
	}
	if result.Fixed != 0 {
		t.Fatal("nothing may be fixed without auto-fix")
	}

	// Without auto-fix the registry is untouched.
	keys, err := st.PublicKeys()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := keys["C"]; !ok {
		t.Fatal("C must survive a report-only sync")
	}
}

func TestSyncAutoFix(t *testing.T) {
	st := testStore(t)
	name := "b"
	if err := st.UpsertPeer("B", &name, nil); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertPeer("CCCCCCCCCCCC", &name, nil); err != nil {
		t.Fatal(err)
	}
	gw := &fakeGateway{peers: []wg.PeerSample{
		{PublicKey: "AAAAAAAAAAAA"}, {PublicKey: "B"},
	}}
	m := testMonitor(t, st, gw, nil)

	result, err := m.Sync(true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Fixed != 2 {
		t.Fatalf("fixed=%d, want 2", result.Fixed)
	}

	keys, err := st.PublicKeys()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := keys["AAAAAAAAAAAA"]; !ok {
		t.Fatal("live-only peer must be registered")
	}
	if _, ok := keys["CCCCCCCCCCCC"]; ok {
		t.Fatal("stale registry peer must be removed")
	}
	if _, ok := keys["B"]; !ok {
		t.Fatal("peer in both sets must be untouched")
	}

	// Placeholder name comes from the truncated key.
	peers, err := st.ListPeers()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, p := range peers {
		if p.PublicKey == "AAAAAAAAAAAA" {
			found = true
			if p.Name != "unknown-AAAAAAAA" {
				t.Fatalf("placeholder name %q", p.Name)
			}
		}
	}
	if !found {
		t.Fatal("registered peer not listed")
	}
}

const genConf = `[Interface]
PrivateKey = server-private
Address = 10.0.1.1/24
`

func TestGeneratePeer(t *testing.T) {
	st := testStore(t)
	ed, path := testEditor(t, genConf)
	gw := &fakeGateway{pubKey: "server-pub", port: 51820}
	m := testMonitor(t, st, gw, ed)

	gp, err := m.GeneratePeer("alice", "a@x.com")
	if err != nil {
		t.Fatal(err)
	}

	if gp.Address != "10.0.1.2/32" {
		t.Fatalf("address %q, want 10.0.1.2/32", gp.Address)
	}
	if gp.ServerPublicKey != "server-pub" || gp.ServerEndpoint != "vpn.example.com:51820" || gp.DNS != "1.1.1.1" {
		t.Fatalf("server fields: %+v", gp)
	}
	if gp.PrivateKey == "" || gp.PublicKey == "" {
		t.Fatal("keypair missing")
	}

	if got := gw.added[gp.PublicKey]; got != "10.0.1.2/32" {
		t.Fatalf("interface not updated: %v", gw.added)
	}

	conf, _ := os.ReadFile(path)
	if !strings.Contains(string(conf), "PublicKey = "+gp.PublicKey) {
		t.Fatal("config file not updated")
	}

	keys, err := st.FindByEmail("a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != gp.PublicKey {
		t.Fatalf("registry: %v", keys)
	}

	// A second peer gets the next address.
	gp2, err := m.GeneratePeer("bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if gp2.Address != "10.0.1.3/32" {
		t.Fatalf("second address %q, want 10.0.1.3/32", gp2.Address)
	}
}

func TestGeneratePeerStopsAtFirstFailure(t *testing.T) {
	st := testStore(t)
	ed, path := testEditor(t, genConf)
	gw := &fakeGateway{addErr: errors.New("interface down")}
	m := testMonitor(t, st, gw, ed)

	_, err := m.GeneratePeer("alice", "a@x.com")
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "apply to interface") {
		t.Fatalf("error must name the failing step: %v", err)
	}

	// Later steps must not have run.
	conf, _ := os.ReadFile(path)
	if string(conf) != genConf {
		t.Fatal("config file must be untouched")
	}
	keys, err := st.FindByEmail("a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatal("registry must be untouched")
	}
}

func TestDeletePeerByEmail(t *testing.T) {
	st := testStore(t)
	name := "x"
	email := "a@x.com"
	if err := st.UpsertPeer("keyA", &name, &email); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertPeer("keyB", &name, &email); err != nil {
		t.Fatal(err)
	}

	conf := genConf +
		"\n[Peer]\nPublicKey = keyA\nAllowedIPs = 10.0.1.2/32\n" +
		"\n[Peer]\nPublicKey = keyB\nAllowedIPs = 10.0.1.3/32\n"
	ed, path := testEditor(t, conf)
	gw := &fakeGateway{}
	m := testMonitor(t, st, gw, ed)

	removals, err := m.DeletePeerByEmail(email, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(removals) != 2 {
		t.Fatalf("got %d removals, want 2", len(removals))
	}
	for _, r := range removals {
		if !r.OK() || !r.ConfigFound {
			t.Fatalf("removal of %s: %+v", r.PublicKey, r)
		}
	}

	if len(gw.removed) != 2 {
		t.Fatalf("interface removals: %v", gw.removed)
	}
	got, _ := os.ReadFile(path)
	if strings.Contains(string(got), "keyA") || strings.Contains(string(got), "keyB") {
		t.Fatalf("config still holds deleted peers:\n%s", got)
	}
	keys, err := st.FindByEmail(email)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("registry still holds %v", keys)
	}
}

func TestDeletePeerByEmailNoMatch(t *testing.T) {
	st := testStore(t)
	m := testMonitor(t, st, &fakeGateway{}, nil)

	_, err := m.DeletePeerByEmail("nobody@x.com", false)
	if !errors.Is(err, ErrNoPeersForEmail) {
		t.Fatalf("got %v, want ErrNoPeersForEmail", err)
	}
}

func TestDeletePeerByEmailInterfaceFailureIsIndependent(t *testing.T) {
	st := testStore(t)
	name := "x"
	email := "a@x.com"
	if err := st.UpsertPeer("keyA", &name, &email); err != nil {
		t.Fatal(err)
	}
	conf := genConf + "\n[Peer]\nPublicKey = keyA\nAllowedIPs = 10.0.1.2/32\n"
	ed, _ := testEditor(t, conf)
	gw := &fakeGateway{removeErr: errors.New("interface down")}
	m := testMonitor(t, st, gw, ed)

	removals, err := m.DeletePeerByEmail(email, false)
	if err != nil {
		t.Fatal(err)
	}
	r := removals[0]
	if r.Interface == nil {
		t.Fatal("interface failure must be reported")
	}
	if r.Config != nil || r.Registry != nil {
		t.Fatalf("config/registry must proceed regardless: %+v", r)
	}
	if r.OK() {
		t.Fatal("removal with a failed step must not be OK")
	}
}
