package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/agentweb/internal/catalog"
)

const appName = "agentweb"

// Environment variables that override file values.
const (
	EnvBackendURL = "AGENTWEB_BACKEND_URL"
	EnvLogLevel   = "AGENTWEB_LOG_LEVEL"
	EnvLogPath    = "AGENTWEB_LOG_PATH"
)

// StreamConfig controls how session event streams recover from transport errors.
type StreamConfig struct {
	Reconnect        bool `json:"reconnect"`
	MaxRetries       int  `json:"max_retries"`
	InitialBackoffMS int  `json:"initial_backoff_ms"`
	MaxBackoffMS     int  `json:"max_backoff_ms"`
}

// InitialBackoff returns the first reconnect delay.
func (s StreamConfig) InitialBackoff() time.Duration {
	return time.Duration(s.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the reconnect delay ceiling.
func (s StreamConfig) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffMS) * time.Millisecond
}

// ServerConfig configures the development backend (agentd).
type ServerConfig struct {
	Addr           string   `json:"addr"`
	WorkspaceRoot  string   `json:"workspace_root"`
	DatabasePath   string   `json:"database_path"`
	StepDelayMS    int      `json:"step_delay_ms"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// StepDelay returns the simulated runner's pause between steps.
func (s ServerConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayMS) * time.Millisecond
}

// Config represents application configuration
type Config struct {
	BackendURL            string       `json:"backend_url"`
	Provider              string       `json:"provider"`
	Model                 string       `json:"model"`
	MaxSteps              int          `json:"max_steps"`
	RequestTimeoutSeconds int          `json:"request_timeout_seconds"`
	RecentSessions        int          `json:"recent_sessions"`
	Stream                StreamConfig `json:"stream"`
	Server                ServerConfig `json:"server"`
	LogLevel              string       `json:"log_level"` // debug, info, warn, error, none
	LogPath               string       `json:"-"`
}

// RequestTimeout returns the per-request timeout for non-streaming calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func defaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
		return filepath.Join(configHome, appName)
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", appName)
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	}
	return defaultConfigDir()
}

// defaultOrigins are the dev-server ports of the browser front ends.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:3000",
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		BackendURL:            "http://localhost:8000",
		Provider:              catalog.DefaultProvider,
		Model:                 catalog.DefaultModel(catalog.DefaultProvider),
		MaxSteps:              catalog.DefaultMaxSteps,
		RequestTimeoutSeconds: 30,
		RecentSessions:        16,
		Stream: StreamConfig{
			Reconnect:        false,
			MaxRetries:       5,
			InitialBackoffMS: 500,
			MaxBackoffMS:     10000,
		},
		Server: ServerConfig{
			Addr:           "localhost:8000",
			WorkspaceRoot:  filepath.Join(os.TempDir(), appName+"-workspaces"),
			DatabasePath:   filepath.Join(stateDir, "chat.db"),
			StepDelayMS:    1000,
			AllowedOrigins: append([]string(nil), defaultOrigins...),
		},
		LogLevel: "info",
		LogPath:  filepath.Join(stateDir, appName+".log"),
	}
}

// Load loads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshal into the defaults so only provided fields are overridden.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.BackendURL == "" {
		c.BackendURL = def.BackendURL
	}
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.Model == "" {
		c.Model = catalog.DefaultModel(c.Provider)
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if c.RecentSessions <= 0 {
		c.RecentSessions = def.RecentSessions
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = def.LogPath
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.WorkspaceRoot == "" {
		c.Server.WorkspaceRoot = def.Server.WorkspaceRoot
	}
	if c.Server.DatabasePath == "" {
		c.Server.DatabasePath = def.Server.DatabasePath
	}
}

// ApplyEnv lets environment variables override file values.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		c.BackendURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogPath)); v != "" {
		c.LogPath = v
	}
}

// Validate checks the values the client depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend_url must be an http(s) URL, got %q", c.BackendURL)
	}
	if err := catalog.CheckModel(c.Provider, c.Model); err != nil {
		return err
	}
	if err := catalog.CheckSteps(c.MaxSteps); err != nil {
		return err
	}
	if c.Stream.Reconnect && c.Stream.MaxRetries < 1 {
		return errors.New("stream.max_retries must be positive when reconnect is enabled")
	}
	return nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
