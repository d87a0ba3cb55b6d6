package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:5000/socket", cfg.ServerURL)
	require.Equal(t, ":8090", cfg.APIListenAddr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 3, cfg.ReconnectAttempts)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Empty(t, cfg.Username)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("WATCHPARTY_SERVER_URL", "wss://env.example/socket")
	t.Setenv("WATCHPARTY_RECONNECT_ATTEMPTS", "5")

	cfg, err := Load([]string{"--server-url", "ws://flag.example/socket", "-u", "alice"})
	require.NoError(t, err)
	require.Equal(t, "ws://flag.example/socket", cfg.ServerURL)
	require.Equal(t, 5, cfg.ReconnectAttempts)
	require.Equal(t, "alice", cfg.Username)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchparty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 3s\nlog-level: info\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load([]string{"--server-url", "http://example"})
	require.ErrorIs(t, err, ErrConfig)

	_, err = Load([]string{"--reconnect-attempts", "0"})
	require.ErrorIs(t, err, ErrConfig)

	_, err = Load([]string{"--no-such-flag"})
	require.ErrorIs(t, err, ErrConfig)
}
