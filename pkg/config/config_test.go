package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "e68a96346678e8131622d453ed80b6e1a5ccf19f05727f8a4d31281ae6e82458"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Network.Testnet)
	assert.Equal(t, 20*time.Second, cfg.Client.RegisterTimeout)
	assert.Equal(t, 10*time.Second, cfg.Socket.RetryTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zex.yaml")
	content := `
network:
  testnet: false
  api_host: http://127.0.0.1:9000
client:
  register_timeout: 5s
  rate_limit: 20
socket:
  retry_timeout: 2s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("ZEX_API_KEY", testKey)
	t.Setenv("ZEX_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Network.Testnet)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Network.APIHost)
	assert.Equal(t, 5*time.Second, cfg.Client.RegisterTimeout)
	assert.Equal(t, 20, cfg.Client.RateLimit)
	assert.Equal(t, 2*time.Second, cfg.Socket.RetryTimeout)
	assert.Equal(t, 10*time.Second, cfg.Socket.StartupTimeout, "unset keys keep defaults")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, testKey, cfg.Credentials.APIKey)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zex.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"network":{"ws_host":"ws://localhost:1"},"gateway":{"listen":":9999"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1", cfg.Network.WSHost)
	assert.Equal(t, ":9999", cfg.Gateway.Listen)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zex.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Credentials.APIKey = "abc"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Credentials.APIKey = "0x" + testKey
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Credentials.KeyStoreKey = "0011"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Client.RegisterTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Socket.RetryTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ZEX_GATEWAY_TOKEN=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ZEX_GATEWAY_TOKEN") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Gateway.AuthToken)
}
