package gopref

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidroman0O/gopref/internal/seal"
)

// Config holds the construction parameters of a persistent Preferences.
// The crypto parameters are passed through to the backend untouched.
type Config struct {
	Namespace         string `yaml:"namespace"`
	KeyAlias          string `yaml:"key_alias"`
	EncryptionPadding string `yaml:"encryption_padding"`
	BlockMode         string `yaml:"block_mode"`
	KeySize           int    `yaml:"key_size"` // bits
	DatabasePath      string `yaml:"database_path"`
	KeysReplay        bool   `yaml:"keys_replay"`
	LogLevel          string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	params := seal.DefaultKeyParams()
	return &Config{
		Namespace:         "prefsFileName",
		KeyAlias:          params.Alias,
		EncryptionPadding: params.Padding,
		BlockMode:         params.BlockMode,
		KeySize:           params.KeySize,
		DatabasePath:      "gopref.db",
		KeysReplay:        true,
		LogLevel:          "info",
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file yields the
// defaults. GOPREF_DATABASE_PATH and GOPREF_LOG_LEVEL override the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GOPREF_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("GOPREF_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// KeyParams returns the key generation parameters for the backend.
func (c *Config) KeyParams() seal.KeyParams {
	return seal.KeyParams{
		Alias:     c.KeyAlias,
		Padding:   c.EncryptionPadding,
		BlockMode: c.BlockMode,
		KeySize:   c.KeySize,
	}
}

// Options returns the Preferences options the configuration implies.
func (c *Config) Options() []Option {
	return []Option{WithKeysReplay(c.KeysReplay)}
}
