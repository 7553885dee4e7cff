// Package config manages the agent server connection settings.
//
// The Store is created once by main and passed to everything that needs the
// settings. Readers take a copy with Get; writers persist and swap the copy.
package config

import (
	"sync"

	"go.uber.org/zap"
)

// Store holds the current configuration snapshot.
type Store struct {
	mu      sync.RWMutex
	manager *Manager
	current Remote
	env     Overrides
	logger  *zap.Logger
}

// NewStore loads the configuration through m and applies env on top of it.
// Overrides are never written back to disk.
func NewStore(m *Manager, env Overrides, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := m.Load()
	if err != nil {
		return nil, err
	}
	s := &Store{manager: m, env: env, logger: logger}
	s.current = env.Apply(cfg)
	return s, nil
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Remote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.manager.GetConfigPath()
}

// Save replaces the whole configuration. A password equal to
// RedactedPassword keeps the stored one, so a Redacted copy can be edited and
// saved back.
func (s *Store) Save(cfg Remote) (Remote, error) {
	return s.update(func(r *Remote) {
		stored := r.Password
		*r = cfg
		if cfg.Password == RedactedPassword {
			r.Password = stored
		}
	})
}

// UpdateServerURL sets the server address. Whitespace and trailing slashes are removed.
func (s *Store) UpdateServerURL(url string) (Remote, error) {
	return s.update(func(r *Remote) { r.ServerURL = url })
}

// UpdateAuth sets the Basic auth credentials. An empty password disables auth.
func (s *Store) UpdateAuth(username, password string) (Remote, error) {
	return s.update(func(r *Remote) {
		r.Username = username
		r.Password = password
	})
}

// UpdateProvider sets the default provider and model.
func (s *Store) UpdateProvider(provider, model string) (Remote, error) {
	return s.update(func(r *Remote) {
		r.DefaultProvider = provider
		r.DefaultModel = model
	})
}

func (s *Store) update(fn func(*Remote)) (Remote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Persist the file view, not the env-overridden one.
	onDisk, err := s.manager.Load()
	if err != nil {
		return s.current, err
	}
	fn(&onDisk)
	onDisk.ServerURL = NormalizeServerURL(onDisk.ServerURL)
	if onDisk.ServerURL == "" {
		onDisk.ServerURL = DefaultServerURL
	}

	if err := s.manager.Save(onDisk); err != nil {
		return s.current, err
	}
	s.current = s.env.Apply(onDisk)
	s.logger.Info("configuration updated",
		zap.String("server_url", s.current.ServerURL),
		zap.Bool("auth", s.current.HasAuth()))
	return s.current, nil
}
