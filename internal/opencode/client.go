// Package opencode is an HTTP client for an OpenCode-style agent server.
package opencode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/config"
)

const (
	// DefaultTimeout bounds a whole request.
	DefaultTimeout = 120 * time.Second
	// DefaultConnectTimeout bounds connection setup.
	DefaultConnectTimeout = 10 * time.Second
)

// Observer is called once per request with the status code (0 when no
// response was received) and the elapsed time.
type Observer func(op string, status int, d time.Duration)

// Client talks to one agent server. It is immutable after New and safe for
// concurrent use.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *zap.Logger
	observe    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a per-request observer, typically for metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// New creates a client for the server described by cfg.
func New(cfg config.Remote, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		logger:  zap.NewNop(),
	}
	if cfg.HasAuth() {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		c.authHeader = "Basic " + creds
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient()
	}
	return c
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = DefaultConnectTimeout
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthCheck calls GET /global/health.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, "health_check", http.MethodGet, "/global/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Providers calls GET /provider and returns the "all" list.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var out providerListResponse
	if err := c.do(ctx, "get_providers", http.MethodGet, "/provider", nil, &out); err != nil {
		return nil, err
	}
	return out.All, nil
}

// ConfigProviders calls GET /config/providers, the providers the server has
// credentials for.
func (c *Client) ConfigProviders(ctx context.Context) ([]Provider, error) {
	var out configProvidersResponse
	if err := c.do(ctx, "get_config_providers", http.MethodGet, "/config/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// AvailableProviders returns the configured providers, falling back to the
// full provider list when the configured list cannot be fetched.
func (c *Client) AvailableProviders(ctx context.Context) ([]Provider, error) {
	providers, err := c.ConfigProviders(ctx)
	if err == nil {
		return providers, nil
	}
	c.logger.Warn("config providers unavailable, falling back to provider list", zap.Error(err))
	return c.Providers(ctx)
}

// CreateSession calls POST /session. Empty providerID or modelID are omitted.
func (c *Client) CreateSession(ctx context.Context, title, providerID, modelID string) (*Session, error) {
	body := createSessionRequest{Title: title, ProviderID: providerID, ModelID: modelID}
	var out Session
	if err := c.do(ctx, "create_session", http.MethodPost, "/session", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage calls POST /session/{id}/message and waits for the reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string, opts SendOptions) (*Message, error) {
	var out Message
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	if err := c.do(ctx, "send_message", http.MethodPost, path, newSendRequest(text, opts), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessageAsync calls POST /session/{id}/prompt_async. The server starts
// working and the reply is polled later with Messages.
func (c *Client) SendMessageAsync(ctx context.Context, sessionID, text string, opts SendOptions) error {
	path := "/session/" + url.PathEscape(sessionID) + "/prompt_async"
	return c.do(ctx, "send_message_async", http.MethodPost, path, newSendRequest(text, opts), nil)
}

// Messages calls GET /session/{id}/message. A limit of zero or less asks for all.
func (c *Client) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Message
	if err := c.do(ctx, "get_messages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession calls DELETE /session/{id}. Any 2xx status counts as
// deleted; the body is ignored.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	path := "/session/" + url.PathEscape(sessionID)
	if err := c.do(ctx, "delete_session", http.MethodDelete, path, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ListFiles calls GET /file?path= on the server's workspace.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]RemoteFile, error) {
	var out []RemoteFile
	path := "/file?path=" + url.QueryEscape(dir)
	if err := c.do(ctx, "list_files", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile calls GET /file/content?path= and returns the file content.
func (c *Client) ReadFile(ctx context.Context, file string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := "/file/content?path=" + url.QueryEscape(file)
	if err := c.do(ctx, "read_file", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func newSendRequest(text string, opts SendOptions) sendRequest {
	return sendRequest{
		Agent: opts.Agent,
		Model: opts.Model,
		Parts: []MessagePart{{Type: PartText, Text: text}},
	}
}

// do performs one request. A nil out discards the body.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	target := c.baseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, 0, start)
		return &TransportError{Op: op, URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	c.record(op, resp.StatusCode, start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, URL: c.baseURL, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	c.logger.Debug("agent server call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Op: op, Body: string(raw), Err: err}
	}
	return nil
}

func (c *Client) record(op string, status int, start time.Time) {
	if c.observe != nil {
		c.observe(op, status, time.Since(start))
	}
}
