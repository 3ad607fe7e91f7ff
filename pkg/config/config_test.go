package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/network-synapse/synapse/pkg/util"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Device.Port != 57400 {
		t.Errorf("Device.Port = %d, want 57400", cfg.Device.Port)
	}
	if cfg.Device.Username != "admin" || cfg.Device.Password != "NokiaSrl1!" {
		t.Errorf("unexpected default device credentials %s/%s", cfg.Device.Username, cfg.Device.Password)
	}
	p := cfg.Retry.Deploy
	if p.InitialInterval != 5*time.Second || p.Multiplier != 2 || p.MaxInterval != 60*time.Second || p.MaxAttempts != 3 {
		t.Errorf("deploy policy = %+v, want 5s/2x/60s/3", p)
	}
	if cfg.Render.NetworkInstance != "default" || cfg.Render.ImportPolicy != "import-all" || cfg.Render.ExportPolicy != "export-all" {
		t.Errorf("render defaults = %+v", cfg.Render)
	}
	if cfg.Journal.Backend != JournalFile {
		t.Errorf("Journal.Backend = %q, want file", cfg.Journal.Backend)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synapse.yaml")
	data := `
infrahub:
  url: http://infrahub:8000
  token: abc123
device:
  timeout: 10s
  tunnel:
    host: jump.lab
    user: ops
retry:
  deploy:
    initial_interval: 1s
    multiplier: 3
    max_interval: 20s
    max_attempts: 5
journal:
  backend: redis
  redis_addr: redis:6379
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Infrahub.URL != "http://infrahub:8000" || cfg.Infrahub.Token != "abc123" {
		t.Errorf("Infrahub = %+v", cfg.Infrahub)
	}
	// untouched fields keep their defaults
	if cfg.Infrahub.Username != "admin" {
		t.Errorf("Infrahub.Username = %q, want default admin", cfg.Infrahub.Username)
	}
	if cfg.Device.Timeout != 10*time.Second {
		t.Errorf("Device.Timeout = %v, want 10s", cfg.Device.Timeout)
	}
	if !cfg.Device.Tunnel.Enabled() {
		t.Error("tunnel should be enabled")
	}
	if cfg.Retry.Deploy.MaxAttempts != 5 || cfg.Retry.Deploy.Multiplier != 3 {
		t.Errorf("Retry.Deploy = %+v", cfg.Retry.Deploy)
	}
	if cfg.Retry.Fetch.MaxAttempts != 3 {
		t.Errorf("Retry.Fetch should keep default, got %+v", cfg.Retry.Fetch)
	}
	if cfg.Journal.Backend != JournalRedis {
		t.Errorf("Journal.Backend = %q", cfg.Journal.Backend)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Infrahub.URL != "http://localhost:8000" {
		t.Errorf("URL = %q", cfg.Infrahub.URL)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("infrahub: [unterminated"), 0644)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "parsing config YAML") {
		t.Errorf("expected parse error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("journal:\n  backend: etcd\ndevice:\n  port: 0\n"), 0644)
	_, err := Load(invalid)
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "journal.backend") || !strings.Contains(err.Error(), "device.port") {
		t.Errorf("expected every problem reported: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INFRAHUB_URL":            "https://sot.example.net",
		"INFRAHUB_TOKEN":          "tok",
		"SYNAPSE_DEVICE_PASSWORD": "secret",
		"SYNAPSE_DEVICE_USERNAME": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.ApplyEnv(lookup)

	if cfg.Infrahub.URL != "https://sot.example.net" || cfg.Infrahub.Token != "tok" {
		t.Errorf("Infrahub = %+v", cfg.Infrahub)
	}
	if cfg.Device.Password != "secret" {
		t.Errorf("Device.Password = %q", cfg.Device.Password)
	}
	if cfg.Device.Username != "admin" {
		t.Errorf("empty override should be ignored, got %q", cfg.Device.Username)
	}
}

func TestValidatePolicy(t *testing.T) {
	cfg := Default()
	cfg.Retry.Fetch = PolicyConfig{InitialInterval: 10 * time.Second, Multiplier: 0.5, MaxInterval: time.Second, MaxAttempts: 0}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"retry.fetch.max_attempts", "retry.fetch.multiplier", "retry.fetch.max_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}
