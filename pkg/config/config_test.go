package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BACKEND_URL", "SOCKET_URL", "TASKMGR_API_BACKEND_URL", "TASKMGR_REALTIME_URL", "TASKMGR_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, "http://localhost:4000", cfg.BackendURL)
	assert.Equal(t, "http://localhost:4000/api", cfg.APIBaseURL())
	assert.Equal(t, "ws://localhost:4000/ws", cfg.RealtimeURL)
	assert.Equal(t, 30*time.Second, cfg.APITimeout)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "taskmgr.log"), cfg.LogFile)
}

func TestLoadCreatesConfigDir(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "new", "location", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)

	info, err := os.Stat(cfg.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadUserFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[api]
backend_url = "https://tasks.example.com/"
timeout = "5s"

[realtime]
reconnect_attempts = 3
reconnect_delay = "250ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://tasks.example.com", cfg.BackendURL)
	assert.Equal(t, "wss://tasks.example.com/ws", cfg.RealtimeURL)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
}

func TestLoadEnvironmentWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "http://10.0.0.5:9000")
	t.Setenv("SOCKET_URL", "ws://10.0.0.5:9001/socket")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000", cfg.BackendURL)
	assert.Equal(t, "ws://10.0.0.5:9001/socket", cfg.RealtimeURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\nbackend_url = "), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{BackendURL: "http://localhost:4000", ReconnectAttempts: 5, ReconnectDelay: time.Second}
	assert.NoError(t, base.Validate())

	noURL := base
	noURL.BackendURL = ""
	assert.Error(t, noURL.Validate())

	negative := base
	negative.ReconnectAttempts = -1
	assert.Error(t, negative.Validate())

	zeroDelay := base
	zeroDelay.ReconnectDelay = 0
	assert.Error(t, zeroDelay.Validate())
}

func TestPathsLiveUnderConfigDir(t *testing.T) {
	cfg := &Config{Dir: "/tmp/taskmgr"}
	assert.Equal(t, "/tmp/taskmgr/session.json", cfg.SessionPath())
	assert.Equal(t, "/tmp/taskmgr/credentials", cfg.CredentialsPath())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs/x.log"), expandPath("~/logs/x.log"))
	assert.Equal(t, "/var/log/x.log", expandPath("/var/log/x.log"))
}
