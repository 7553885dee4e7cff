package agent

import (
	"context"

	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
)

// TestConnection checks that the server described by remote answers its
// health endpoint, reporting progress as notifications.
func (s *Service) TestConnection(ctx context.Context, remote config.Remote) (*opencode.Health, error) {
	remote.ServerURL = config.NormalizeServerURL(remote.ServerURL)
	s.emit(notify.New(notify.ConnectionTestStart, map[string]any{"server_url": remote.ServerURL}))

	h, err := s.newClient(remote).HealthCheck(ctx)
	if err != nil {
		s.emit(notify.New(notify.ConnectionTestError, map[string]any{
			"server_url": remote.ServerURL,
			"error":      err.Error(),
			"kind":       string(opencode.Classify(err)),
		}))
		return nil, err
	}

	s.emit(notify.New(notify.ConnectionTestSuccess, map[string]any{
		"server_url": remote.ServerURL,
		"healthy":    h.Healthy,
		"version":    h.Version,
	}))
	return h, nil
}

// AvailableProviders lists the providers of the server described by remote.
func (s *Service) AvailableProviders(ctx context.Context, remote config.Remote) ([]opencode.Provider, error) {
	return s.newClient(remote).AvailableProviders(ctx)
}
