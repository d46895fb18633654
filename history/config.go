// CLAUDE:SUMMARY Configuration struct, per-user XDG defaults, and YAML loader for the history engine.
package history

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Config holds all history engine configuration.
type Config struct {
	// DBPath is the SQLite database location.
	// Default: $XDG_DATA_HOME/shotkeeper/history.db
	DBPath string `yaml:"db_path"`

	// StorageDir receives the canonical copy of every ingested image.
	// Default: $XDG_DATA_HOME/shotkeeper/screenshots
	StorageDir string `yaml:"storage_dir"`

	// SkipFingerprints disables perceptual hashing at ingestion. Records
	// ingested while set are excluded from similarity search.
	SkipFingerprints bool `yaml:"skip_fingerprints"`

	// RetentionDays is the default age cutoff for the retention sweep.
	RetentionDays int `yaml:"retention_days"`
}

func (c *Config) defaults() {
	base := filepath.Join(xdg.DataHome, "shotkeeper")
	if c.DBPath == "" {
		c.DBPath = filepath.Join(base, "history.db")
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(base, "screenshots")
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
