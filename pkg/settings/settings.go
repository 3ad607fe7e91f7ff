// Package settings manages persistent user settings for the synapse CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// ConfigPath is used when --config is not given
	ConfigPath string `json:"config_path,omitempty"`

	// OutputDir is the default --output-dir for generate
	OutputDir string `json:"output_dir,omitempty"`

	// AuditLog overrides the audit log path from the config file
	AuditLog string `json:"audit_log,omitempty"`
}

// DefaultOutputDir is where generate writes artifacts when nothing is set.
const DefaultOutputDir = "./generated-configs"

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "synapse_settings.json"
	}
	return filepath.Join(home, ".synapse", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields
// empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// fields maps setting names (and their short aliases) to struct fields.
func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		"config_path": &s.ConfigPath,
		"config":      &s.ConfigPath,
		"output_dir":  &s.OutputDir,
		"output":      &s.OutputDir,
		"audit_log":   &s.AuditLog,
		"audit":       &s.AuditLog,
	}
}

// Names lists the canonical setting names.
func Names() []string {
	return []string{"audit_log", "config_path", "output_dir"}
}

// Get returns a setting by name.
func (s *Settings) Get(name string) (string, error) {
	f, ok := s.fields()[name]
	if !ok {
		return "", fmt.Errorf("unknown setting: %s (valid: %v)", name, Names())
	}
	return *f, nil
}

// Set assigns a setting by name.
func (s *Settings) Set(name, value string) error {
	f, ok := s.fields()[name]
	if !ok {
		return fmt.Errorf("unknown setting: %s (valid: %v)", name, Names())
	}
	*f = value
	return nil
}

// GetOutputDir returns the generate output directory (with fallback)
func (s *Settings) GetOutputDir() string {
	if s.OutputDir != "" {
		return s.OutputDir
	}
	return DefaultOutputDir
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
