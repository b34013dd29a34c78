package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the resolved client configuration.
type Config struct {
	// Dir is the per-user configuration directory holding config.toml,
	// the session file, the cookie credentials file and the log file.
	Dir string
	// File is the user config file that was (or would be) read.
	File string

	BackendURL string
	APITimeout time.Duration
	UserAgent  string

	RealtimeURL       string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration

	LogLevel string
	LogFile  string
}

// APIBaseURL is the REST root, {BACKEND_URL}/api.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.BackendURL, "/") + "/api"
}

// SessionPath is where the whitelisted session fields are persisted.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, "session.json")
}

// CredentialsPath is where the cookie jar snapshot is persisted.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.Dir, "credentials")
}

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\taskmgr
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "taskmgr"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/taskmgr
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "taskmgr"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "taskmgr", "config.toml")}
	}

	return []string{
		"/etc/taskmgr/config.toml",
		"/usr/local/etc/taskmgr/config.toml",
	}
}

// Load resolves configuration from defaults, the first system config found,
// the user config file, a .env file in the working directory and finally the
// environment. configPath overrides the user config location.
func Load(configPath string) (*Config, error) {
	var dir, file string
	if configPath != "" {
		dir = filepath.Dir(configPath)
		file = configPath
	} else {
		d, err := getConfigDir()
		if err != nil {
			return nil, err
		}
		dir = d
		file = filepath.Join(dir, "config.toml")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	// Missing .env is fine; real env vars win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v, dir)

	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			v.SetConfigFile(sysConfigPath)
			_ = v.MergeInConfig()
			break
		}
	}

	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
	}

	v.SetEnvPrefix("TASKMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api.backend_url", "BACKEND_URL", "TASKMGR_API_BACKEND_URL")
	_ = v.BindEnv("realtime.url", "SOCKET_URL", "TASKMGR_REALTIME_URL")

	cfg := &Config{
		Dir:               dir,
		File:              file,
		BackendURL:        strings.TrimRight(v.GetString("api.backend_url"), "/"),
		APITimeout:        v.GetDuration("api.timeout"),
		UserAgent:         v.GetString("api.user_agent"),
		RealtimeURL:       v.GetString("realtime.url"),
		ReconnectAttempts: v.GetInt("realtime.reconnect_attempts"),
		ReconnectDelay:    v.GetDuration("realtime.reconnect_delay"),
		HandshakeTimeout:  v.GetDuration("realtime.handshake_timeout"),
		LogLevel:          v.GetString("log.level"),
		LogFile:           expandPath(v.GetString("log.file")),
	}

	if cfg.RealtimeURL == "" {
		u, err := socketURLFromBackend(cfg.BackendURL)
		if err != nil {
			return nil, err
		}
		cfg.RealtimeURL = u
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("api.backend_url is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("api.backend_url: %w", err)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("realtime.reconnect_attempts must be >= 0, got %d", c.ReconnectAttempts)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("api.backend_url", "http://localhost:4000")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.user_agent", "taskmgr-cli/0.1.0")

	// Empty means derive from api.backend_url.
	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.reconnect_attempts", 5)
	v.SetDefault("realtime.reconnect_delay", "1s")
	v.SetDefault("realtime.handshake_timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "taskmgr.log"))
}

// socketURLFromBackend maps http(s)://host to ws(s)://host/ws.
func socketURLFromBackend(backend string) (string, error) {
	u, err := url.Parse(backend)
	if err != nil {
		return "", fmt.Errorf("api.backend_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
