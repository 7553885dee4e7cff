package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultServerURL is the agent server address used when none is configured.
	DefaultServerURL = "http://localhost:4096"
	// DefaultUsername is the Basic auth user name used when none is configured.
	DefaultUsername = "opencode"

	// RedactedPassword replaces a set password in Redacted copies.
	RedactedPassword = "********"

	appDirName     = "CodeSensei"
	configFileName = "opencode-config.json"
)

// Remote holds the connection settings for the agent server.
type Remote struct {
	ServerURL       string `json:"server_url"`
	Username        string `json:"username"`
	Password        string `json:"password,omitempty"`
	DefaultProvider string `json:"default_provider,omitempty"`
	DefaultModel    string `json:"default_model,omitempty"`
}

// DefaultRemote returns the configuration used on first start.
func DefaultRemote() Remote {
	return Remote{
		ServerURL: DefaultServerURL,
		Username:  DefaultUsername,
	}
}

// HasAuth reports whether Basic credentials should be sent.
func (r Remote) HasAuth() bool {
	return r.Password != ""
}

// Redacted returns a copy safe to log or hand to a UI.
func (r Remote) Redacted() Remote {
	if r.Password != "" {
		r.Password = RedactedPassword
	}
	return r
}

// NormalizeServerURL trims whitespace and trailing slashes.
func NormalizeServerURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// Manager handles loading and saving the configuration file.
type Manager struct {
	configDir string
	logger    *zap.Logger
}

// NewManager creates a manager rooted at <user config dir>/CodeSensei.
func NewManager(logger *zap.Logger) (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, appDirName), logger), nil
}

// NewManagerAt creates a manager that keeps its file in dir.
func NewManagerAt(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{configDir: dir, logger: logger}
}

// Dir returns the application directory holding the config file.
func (m *Manager) Dir() string {
	return m.configDir
}

// GetConfigPath returns the absolute path to the config file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, configFileName)
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// Load reads the configuration from disk.
// A missing file is replaced by the defaults, which are persisted. A file that
// cannot be parsed yields the defaults and a logged warning.
func (m *Manager) Load() (Remote, error) {
	path := m.GetConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultRemote()
		if err := m.Save(cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err != nil {
		return Remote{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultRemote()
	if err := json.Unmarshal(data, &cfg); err != nil {
		m.logger.Warn("config file is not valid JSON, using defaults",
			zap.String("path", path), zap.Error(err))
		return DefaultRemote(), nil
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	cfg.ServerURL = NormalizeServerURL(cfg.ServerURL)

	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg Remote) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with 0600 permissions, the file holds the server password.
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
