package chatclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_url: https://chat.example.com\nusername: alice\nlog_level: debug\n",
	), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://chat.example.com", cfg.ServerURL)
	require.Equal(t, "alice", cfg.Username)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestResolveWebsocketURL(t *testing.T) {
	require.Equal(t, "ws://localhost:8000/ws",
		Config{ServerURL: "http://localhost:8000"}.ResolveWebsocketURL())
	require.Equal(t, "wss://chat.example.com/ws",
		Config{ServerURL: "https://chat.example.com/"}.ResolveWebsocketURL())
	require.Equal(t, "ws://other/socket",
		Config{ServerURL: "http://x", WebsocketURL: "ws://other/socket"}.ResolveWebsocketURL())
}
