// Package config handles configuration for the vault daemon, including
// defaults, environment overlay (.env aware) and command-line flags.
package config

import "time"

// Config holds runtime settings for SentryVault.
//
// Fields:
//   - StorageRoot: base directory for ciphertext files and the key salt.
//   - DatabaseDSN: SQLite DSN for the metadata store.
//   - ManifestPath: YAML manifest of monitored resources and expected hashes.
//   - ScanInterval: baseline period between integrity ticks.
//   - OfflineBackoff: delay after an errored tick (0 means 2×ScanInterval).
//   - Passphrase: vault passphrase; when empty the daemon prompts on start.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	StorageRoot    string        `env:"SV_STORAGE_ROOT"`
	DatabaseDSN    string        `env:"SV_DATABASE_DSN"`
	ManifestPath   string        `env:"SV_MANIFEST"`
	ScanInterval   time.Duration `env:"SV_SCAN_INTERVAL"`
	OfflineBackoff time.Duration `env:"SV_OFFLINE_BACKOFF"`
	Passphrase     string        `env:"SV_PASSPHRASE"`
	LogLevel       string        `env:"SV_LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StorageRoot = "./vault"
	c.DatabaseDSN = "file:vault/metadata.db"
	c.ManifestPath = "integrity.yaml"
	c.ScanInterval = 5 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment (including a local .env file, if present) and command-line
// flags. Later sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	return cfg, nil
}
