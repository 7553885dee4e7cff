package config

import (
	"os"
	"strings"
)

// Environment variable names read by OverridesFromEnv.
const (
	EnvServerURL       = "SENSEI_SERVER_URL"
	EnvUsername        = "SENSEI_USERNAME"
	EnvPassword        = "SENSEI_PASSWORD"
	EnvDefaultProvider = "SENSEI_DEFAULT_PROVIDER"
	EnvDefaultModel    = "SENSEI_DEFAULT_MODEL"
)

// Overrides are values taken from the environment (and .env via godotenv)
// that win over the file. Empty fields leave the file value alone.
type Overrides struct {
	ServerURL       string
	Username        string
	Password        string
	DefaultProvider string
	DefaultModel    string
}

// OverridesFromEnv reads the SENSEI_* variables.
func OverridesFromEnv() Overrides {
	return Overrides{
		ServerURL:       strings.TrimSpace(os.Getenv(EnvServerURL)),
		Username:        strings.TrimSpace(os.Getenv(EnvUsername)),
		Password:        os.Getenv(EnvPassword),
		DefaultProvider: strings.TrimSpace(os.Getenv(EnvDefaultProvider)),
		DefaultModel:    strings.TrimSpace(os.Getenv(EnvDefaultModel)),
	}
}

// Apply returns cfg with the non-empty overrides applied.
func (o Overrides) Apply(cfg Remote) Remote {
	if o.ServerURL != "" {
		cfg.ServerURL = NormalizeServerURL(o.ServerURL)
	}
	if o.Username != "" {
		cfg.Username = o.Username
	}
	if o.Password != "" {
		cfg.Password = o.Password
	}
	if o.DefaultProvider != "" {
		cfg.DefaultProvider = o.DefaultProvider
	}
	if o.DefaultModel != "" {
		cfg.DefaultModel = o.DefaultModel
	}
	return cfg
}
