// Package config holds the explicit configuration passed into every
// pipeline component at construction.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/network-synapse/synapse/pkg/util"
)

// Config is the root configuration document.
type Config struct {
	Infrahub InfrahubConfig `yaml:"infrahub"`
	Device   DeviceConfig   `yaml:"device"`
	Retry    RetryConfig    `yaml:"retry"`
	Journal  JournalConfig  `yaml:"journal"`
	Backup   BackupConfig   `yaml:"backup"`
	Audit    AuditConfig    `yaml:"audit"`
	Hygiene  HygieneConfig  `yaml:"hygiene"`
	Render   RenderConfig   `yaml:"render"`
	Server   ServerConfig   `yaml:"server"`
}

// InfrahubConfig locates and authenticates against the source of truth.
// Token wins over Username/Password.
type InfrahubConfig struct {
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token,omitempty"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DeviceConfig configures the gNMI gateway.
type DeviceConfig struct {
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	TLS        bool          `yaml:"tls"`
	SkipVerify bool          `yaml:"skip_verify"`
	Timeout    time.Duration `yaml:"timeout"`
	Tunnel     TunnelConfig  `yaml:"tunnel"`
}

// TunnelConfig is an optional SSH jump host in front of the devices.
type TunnelConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Enabled reports whether a jump host is configured.
func (t TunnelConfig) Enabled() bool { return t.Host != "" }

// PolicyConfig is one bounded exponential backoff policy.
type PolicyConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// RetryConfig holds the policy for source-of-truth calls and device calls.
type RetryConfig struct {
	Fetch  PolicyConfig `yaml:"fetch"`
	Deploy PolicyConfig `yaml:"deploy"`
}

// Journal backends
const (
	JournalFile  = "file"
	JournalRedis = "redis"
)

// JournalConfig selects where ChangeRecords are persisted.
type JournalConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Prefix    string `yaml:"prefix"`
}

// BackupConfig configures the on-disk backup archive.
type BackupConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// HygieneConfig configures the pre-deploy gate.
type HygieneConfig struct {
	InterfacePrefixes []string `yaml:"interface_prefixes"`
}

// RenderConfig sets the names stamped into rendered artifacts.
type RenderConfig struct {
	NetworkInstance string `yaml:"network_instance"`
	GroupName       string `yaml:"group_name"`
	ImportPolicy    string `yaml:"import_policy"`
	ExportPolicy    string `yaml:"export_policy"`
}

// ServerConfig configures "synapse serve".
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()
	state := home + "/.synapse"

	reference := PolicyConfig{
		InitialInterval: 5 * time.Second,
		Multiplier:      2,
		MaxInterval:     60 * time.Second,
		MaxAttempts:     3,
	}

	return &Config{
		Infrahub: InfrahubConfig{
			URL:      "http://localhost:8000",
			Username: "admin",
			Password: "infrahub",
			Timeout:  30 * time.Second,
		},
		Device: DeviceConfig{
			Port:     57400,
			Username: "admin",
			Password: "NokiaSrl1!",
			Timeout:  30 * time.Second,
		},
		Retry: RetryConfig{Fetch: reference, Deploy: reference},
		Journal: JournalConfig{
			Backend:   JournalFile,
			Dir:       state + "/changes",
			RedisAddr: "localhost:6379",
			Prefix:    "synapse",
		},
		Backup: BackupConfig{Dir: state + "/backups", Keep: 10},
		Audit: AuditConfig{
			Path:       state + "/audit.log",
			MaxSizeMB:  10,
			MaxBackups: 10,
		},
		Hygiene: HygieneConfig{InterfacePrefixes: []string{"ethernet-", "system", "lo"}},
		Render: RenderConfig{
			NetworkInstance: "default",
			GroupName:       "underlay",
			ImportPolicy:    "import-all",
			ExportPolicy:    "export-all",
		},
		Server: ServerConfig{Listen: ":9400"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("INFRAHUB_URL"); ok && v != "" {
		c.Infrahub.URL = v
	}
	if v, ok := lookup("INFRAHUB_TOKEN"); ok && v != "" {
		c.Infrahub.Token = v
	}
	if v, ok := lookup("SYNAPSE_DEVICE_USERNAME"); ok && v != "" {
		c.Device.Username = v
	}
	if v, ok := lookup("SYNAPSE_DEVICE_PASSWORD"); ok && v != "" {
		c.Device.Password = v
	}
	if v, ok := lookup("SYNAPSE_REDIS_ADDR"); ok && v != "" {
		c.Journal.RedisAddr = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}

	v.Add(strings.HasPrefix(c.Infrahub.URL, "http://") || strings.HasPrefix(c.Infrahub.URL, "https://"),
		fmt.Sprintf("infrahub.url must be an http(s) URL, got %q", c.Infrahub.URL))
	v.Add(c.Infrahub.Timeout > 0, "infrahub.timeout must be positive")
	v.Add(c.Device.Port > 0 && c.Device.Port < 65536, fmt.Sprintf("device.port out of range: %d", c.Device.Port))
	v.Add(c.Device.Timeout > 0, "device.timeout must be positive")
	if c.Device.Tunnel.Enabled() {
		v.Add(c.Device.Tunnel.User != "", "device.tunnel.user is required when tunnel.host is set")
	}

	validatePolicy(v, "retry.fetch", c.Retry.Fetch)
	validatePolicy(v, "retry.deploy", c.Retry.Deploy)

	switch c.Journal.Backend {
	case JournalFile:
		v.Add(c.Journal.Dir != "", "journal.dir is required for the file backend")
	case JournalRedis:
		v.Add(c.Journal.RedisAddr != "", "journal.redis_addr is required for the redis backend")
	default:
		v.AddErrorf("journal.backend must be %q or %q, got %q", JournalFile, JournalRedis, c.Journal.Backend)
	}

	v.Add(c.Backup.Keep >= 0, "backup.keep must not be negative")
	v.Add(len(c.Hygiene.InterfacePrefixes) > 0, "hygiene.interface_prefixes must not be empty")
	v.Add(c.Render.NetworkInstance != "", "render.network_instance is required")

	return v.Build()
}

func validatePolicy(v *util.ValidationBuilder, name string, p PolicyConfig) {
	v.Add(p.MaxAttempts >= 1, fmt.Sprintf("%s.max_attempts must be at least 1", name))
	v.Add(p.InitialInterval >= 0, fmt.Sprintf("%s.initial_interval must not be negative", name))
	v.Add(p.Multiplier >= 1, fmt.Sprintf("%s.multiplier must be at least 1", name))
	v.Add(p.MaxInterval >= p.InitialInterval, fmt.Sprintf("%s.max_interval must be >= initial_interval", name))
}
