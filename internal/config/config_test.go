package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "interface: wg1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level %q", cfg.LogLevel)
	}
	if cfg.ConfigFile != "/etc/wireguard/wg1.conf" {
		t.Errorf("config_file must follow the interface name, got %q", cfg.ConfigFile)
	}
	if cfg.DatabasePath != "/var/lib/wgusage/usage.db" {
		t.Errorf("database_path %q", cfg.DatabasePath)
	}
	if cfg.SubnetBase != "10.0.1" {
		t.Errorf("subnet_base %q", cfg.SubnetBase)
	}
	if cfg.GatewayMode != "exec" {
		t.Errorf("gateway_mode %q", cfg.GatewayMode)
	}
	if cfg.CollectInterval != 300 {
		t.Errorf("collect_interval %d", cfg.CollectInterval)
	}
	if cfg.Server.DNS != "1.1.1.1" {
		t.Errorf("dns %q", cfg.Server.DNS)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `log_level: debug
interface: wg0
database_path: /tmp/test.db
subnet_base: 192.168.7
gateway_mode: wgctrl
collect_interval: 60
web:
  enabled: true
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabasePath != "/tmp/test.db" || cfg.SubnetBase != "192.168.7" || cfg.GatewayMode != "wgctrl" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CollectInterval != 60 {
		t.Errorf("collect_interval %d", cfg.CollectInterval)
	}
	if cfg.Web.Listen != ":8080" {
		t.Errorf("enabled web must default its listen address, got %q", cfg.Web.Listen)
	}
}

func TestLoadRejectsBadSubnetBase(t *testing.T) {
	for _, base := range []string{"10.0", "10.0.1.0", "10.0.x", "10.0.999"} {
		if _, err := Load(writeConfig(t, "subnet_base: \""+base+"\"\n")); err == nil {
			t.Errorf("subnet_base %q must be rejected", base)
		}
	}
}

func TestLoadRejectsBadGatewayMode(t *testing.T) {
	if _, err := Load(writeConfig(t, "gateway_mode: netlink\n")); err == nil {
		t.Fatal("unknown gateway_mode must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must be an error")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	} {
		c := Config{LogLevel: in}
		if got := c.ParseLogLevel(); got != want {
			t.Errorf("%q: got %v, want %v", in, got, want)
		}
	}
}
