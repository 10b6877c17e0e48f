package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel          string                  `yaml:"log_level"`
	Interface         string                  `yaml:"interface"`
	ConfigFile        string                  `yaml:"config_file"`
	DatabasePath      string                  `yaml:"database_path"`
	SubnetBase        string                  `yaml:"subnet_base"`
	GatewayMode       string                  `yaml:"gateway_mode"` // "exec" or "wgctrl"
	CollectInterval   int                     `yaml:"collect_interval"`
	ClientConfigDir   string                  `yaml:"client_config_dir"`
	Server            ServerConfig            `yaml:"server"`
	Web               WebConfig               `yaml:"web"`
	ObservabilityHTTP ObservabilityHTTPConfig `yaml:"observability_http"`
}

// ServerConfig describes the values rendered into generated client
// configurations. Endpoint is the public host:port clients dial.
type ServerConfig struct {
	Endpoint string `yaml:"endpoint"`
	DNS      string `yaml:"dns"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type ObservabilityHTTPConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
	Pprof   bool   `yaml:"pprof"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Interface == "" {
		cfg.Interface = "wg0"
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = filepath.Join("/etc/wireguard", cfg.Interface+".conf")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/lib/wgusage/usage.db"
	}
	if cfg.SubnetBase == "" {
		cfg.SubnetBase = "10.0.1"
	}
	if cfg.GatewayMode == "" {
		cfg.GatewayMode = "exec"
	}
	if cfg.GatewayMode != "exec" && cfg.GatewayMode != "wgctrl" {
		return nil, fmt.Errorf("gateway_mode must be \"exec\" or \"wgctrl\", got %q", cfg.GatewayMode)
	}
	if cfg.CollectInterval == 0 {
		cfg.CollectInterval = 300
	}
	if cfg.Server.DNS == "" {
		cfg.Server.DNS = "1.1.1.1"
	}
	if cfg.Web.Enabled && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if err := validateSubnetBase(cfg.SubnetBase); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateSubnetBase checks that the base looks like the first three
// octets of an IPv4 /24, e.g. "10.0.1".
func validateSubnetBase(base string) error {
	parts := strings.Split(base, ".")
	if len(parts) != 3 {
		return fmt.Errorf("subnet_base %q: want three dotted octets, e.g. \"10.0.1\"", base)
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("subnet_base %q: bad octet %q", base, p)
		}
	}
	return nil
}

func (c *Config) ParseLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
