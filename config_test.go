package gopref

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidroman0O/gopref/internal/seal"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "prefsFileName", cfg.Namespace)
	assert.Equal(t, seal.DefaultKeyParams(), cfg.KeyParams())
	assert.True(t, cfg.KeysReplay)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("GOPREF_DATABASE_PATH", "")
	t.Setenv("GOPREF_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "gopref.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: settings
block_mode: CHACHA20-POLY1305
keys_replay: false
database_path: /var/lib/gopref/prefs.db
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "settings", cfg.Namespace)
	assert.Equal(t, "/var/lib/gopref/prefs.db", cfg.DatabasePath)
	assert.False(t, cfg.KeysReplay)
	assert.Equal(t, seal.KeyParams{
		Alias:     "keyStoreAlias",
		Padding:   seal.PaddingNone,
		BlockMode: seal.BlockModeChaCha20,
		KeySize:   256,
	}, cfg.KeyParams())
}

func TestLoadConfigMissingFileAndOverrides(t *testing.T) {
	t.Setenv("GOPREF_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("GOPREF_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespace: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeysReplay = false

	p, _ := newTestPreferences(t, cfg.Options()...)
	assert.False(t, p.keysReplay)
}
