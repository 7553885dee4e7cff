// Package agent runs the orchestration sagas that drive the remote agent
// server: requirement updates and code generation.
//
// Every saga follows the same steps: load the project, check the server,
// build a prompt, open a session, send it. Sync variants wait for the reply
// and delete the session; async variants hand the session id back for
// polling. A session opened by a saga is deleted on any later failure.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/history"
	"github.com/ChamsBouzaiene/sensei/internal/metrics"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
	"github.com/ChamsBouzaiene/sensei/internal/project"
	"github.com/ChamsBouzaiene/sensei/internal/prompts"
	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

// Saga kinds, as recorded in the run ledger and metrics.
const (
	KindRequirement      = "requirement"
	KindRequirementAsync = "requirement_async"
	KindCodegen          = "codegen"
	KindCodegenAsync     = "codegen_async"
)

// Session titles shown on the agent server.
const (
	TitleRequirement = "Requirement update"
	TitleCodegen     = "Code generation"
)

const cleanupTimeout = 10 * time.Second

var (
	// ErrProjectNotFound is returned when the project has no metadata.
	ErrProjectNotFound = errors.New("project not found")
	// ErrEmptyResponse is returned when the agent produced no text where text is required.
	ErrEmptyResponse = errors.New("agent returned an empty response")
	// ErrNoReply is returned while an async session has no finished assistant reply yet.
	ErrNoReply = errors.New("agent has not replied yet")
)

// SessionClient is the part of the agent server client the sagas use.
type SessionClient interface {
	HealthCheck(ctx context.Context) (*opencode.Health, error)
	AvailableProviders(ctx context.Context) ([]opencode.Provider, error)
	CreateSession(ctx context.Context, title, providerID, modelID string) (*opencode.Session, error)
	SendMessage(ctx context.Context, sessionID, text string, opts opencode.SendOptions) (*opencode.Message, error)
	SendMessageAsync(ctx context.Context, sessionID, text string, opts opencode.SendOptions) error
	Messages(ctx context.Context, sessionID string, limit int) ([]opencode.Message, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}

var _ SessionClient = (*opencode.Client)(nil)

// ProjectStore resolves projects and their paths.
type ProjectStore interface {
	Get(id string) (*project.Project, error)
	Touch(id string) error
	ProjectRoot(p *project.Project) string
	RequirementPath(p *project.Project) string
}

var _ ProjectStore = (*project.Store)(nil)

// RunRecorder records saga runs.
type RunRecorder interface {
	Start(ctx context.Context, kind, projectID string) (string, error)
	AttachSession(ctx context.Context, id, sessionID string) error
	Finish(ctx context.Context, id string, status history.Status, errMsg string) error
	FinishSession(ctx context.Context, sessionID string, status history.Status, errMsg string) error
}

var _ RunRecorder = (*history.Store)(nil)

// ConfigSource provides the current connection settings.
type ConfigSource interface {
	Get() config.Remote
}

// ClientFactory builds a client for a configuration snapshot.
type ClientFactory func(config.Remote) SessionClient

// OpencodeClients returns a factory producing opencode clients with opts.
func OpencodeClients(opts ...opencode.Option) ClientFactory {
	return func(r config.Remote) SessionClient {
		return opencode.New(r, opts...)
	}
}

// AgentResponse is the result of a sync saga.
type AgentResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	FileModified    string `json:"file_modified,omitempty"`
	DocumentContent string `json:"document_content,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}

// Deps are the collaborators of a Service. Config and Projects are required.
type Deps struct {
	Config    ConfigSource
	Projects  ProjectStore
	NewClient ClientFactory
	Notifier  notify.Notifier
	Runs      RunRecorder
	Prompts   *prompts.Registry
	Scanner   *workspace.Scanner
	Logger    *zap.Logger
}

// Service runs sagas. It holds no per-call state and is safe for concurrent use.
type Service struct {
	config    ConfigSource
	projects  ProjectStore
	newClient ClientFactory
	notifier  notify.Notifier
	runs      RunRecorder
	prompts   *prompts.Registry
	scanner   *workspace.Scanner
	logger    *zap.Logger
}

// NewService creates a Service, filling optional deps with defaults.
func NewService(d Deps) (*Service, error) {
	if d.Config == nil {
		return nil, errors.New("agent: config source is required")
	}
	if d.Projects == nil {
		return nil, errors.New("agent: project store is required")
	}
	s := &Service{
		config:    d.Config,
		projects:  d.Projects,
		newClient: d.NewClient,
		notifier:  d.Notifier,
		runs:      d.Runs,
		prompts:   d.Prompts,
		scanner:   d.Scanner,
		logger:    d.Logger,
	}
	if s.newClient == nil {
		s.newClient = OpencodeClients()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.prompts == nil {
		s.prompts = prompts.NewDefaultRegistry()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.scanner == nil {
		s.scanner = workspace.NewScanner(workspace.ScanOptions{}, s.logger)
	}
	return s, nil
}

// Config returns the current connection settings.
func (s *Service) Config() config.Remote {
	return s.config.Get()
}

// SessionMessages fetches messages of a session for polling.
func (s *Service) SessionMessages(ctx context.Context, sessionID string, limit int) ([]opencode.Message, error) {
	return s.newClient(s.config.Get()).Messages(ctx, sessionID, limit)
}

// sagaEnv is what every saga needs after loading the project.
type sagaEnv struct {
	project *project.Project
	remote  config.Remote
	client  SessionClient
}

func (s *Service) prepare(ctx context.Context, projectID string) (*sagaEnv, error) {
	p, err := s.projects.Get(projectID)
	if errors.Is(err, project.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	remote := s.config.Get()
	return &sagaEnv{project: p, remote: remote, client: s.newClient(remote)}, nil
}

func (s *Service) checkHealth(ctx context.Context, env *sagaEnv) error {
	h, err := env.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	s.logger.Debug("agent server healthy",
		zap.String("server_url", env.remote.ServerURL),
		zap.String("version", h.Version))
	return nil
}

func (s *Service) openSession(ctx context.Context, env *sagaEnv, title string) (*opencode.Session, error) {
	session, err := env.client.CreateSession(ctx, title, env.remote.DefaultProvider, env.remote.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// deleteSession removes a session, logging failures. It runs even when ctx
// is already cancelled.
func (s *Service) deleteSession(ctx context.Context, client SessionClient, sessionID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	ok, err := client.DeleteSession(cctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("server kept session", zap.String("session_id", sessionID))
	}
}

func (s *Service) emit(e notify.Event) {
	s.notifier.Notify(e)
}

func (s *Service) progress(projectID, stage, message string) {
	s.emit(notify.Progress(projectID, stage, message))
}

// touch bumps the project's updated_at.
func (s *Service) touch(projectID string) {
	if err := s.projects.Touch(projectID); err != nil {
		s.logger.Debug("failed to touch project", zap.String("project_id", projectID), zap.Error(err))
	}
}

// readOptional returns the file content, or "" when it cannot be read.
func (s *Service) readOptional(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read file, treating as empty", zap.String("path", path), zap.Error(err))
		}
		return ""
	}
	return string(data)
}

// run tracks one saga execution for the ledger and metrics.
type run struct {
	s         *Service
	id        string
	kind      string
	projectID string
	started   time.Time
}

func (s *Service) begin(ctx context.Context, kind, projectID string) *run {
	r := &run{s: s, kind: kind, projectID: projectID, started: time.Now()}
	if s.runs != nil {
		id, err := s.runs.Start(ctx, kind, projectID)
		if err != nil {
			s.logger.Warn("failed to record run", zap.String("kind", kind), zap.Error(err))
		}
		r.id = id
	}
	s.logger.Info("saga started", zap.String("kind", kind), zap.String("project_id", projectID))
	return r
}

func (r *run) attach(ctx context.Context, sessionID string) {
	if r.s.runs == nil || r.id == "" {
		return
	}
	if err := r.s.runs.AttachSession(context.WithoutCancel(ctx), r.id, sessionID); err != nil {
		r.s.logger.Warn("failed to record session", zap.String("run_id", r.id), zap.Error(err))
	}
}

// end records the outcome. success is the status used when err is nil.
func (r *run) end(ctx context.Context, err error, success history.Status) {
	metrics.RecordSaga(r.kind, err, time.Since(r.started))

	logger := r.s.logger.With(
		zap.String("kind", r.kind),
		zap.String("project_id", r.projectID),
		zap.Duration("duration", time.Since(r.started)))
	status, msg := success, ""
	if err != nil {
		status, msg = history.StatusFailed, err.Error()
		logger.Warn("saga failed", zap.Error(err))
	} else {
		logger.Info("saga finished", zap.String("status", string(status)))
	}

	if r.s.runs == nil || r.id == "" {
		return
	}
	if ferr := r.s.runs.Finish(context.WithoutCancel(ctx), r.id, status, msg); ferr != nil {
		r.s.logger.Warn("failed to record run result", zap.String("run_id", r.id), zap.Error(ferr))
	}
}

// finishSession closes the ledger entry of an async run.
func (s *Service) finishSession(ctx context.Context, sessionID string, err error) {
	if s.runs == nil {
		return
	}
	status, msg := history.StatusSucceeded, ""
	if err != nil {
		status, msg = history.StatusFailed, err.Error()
	}
	if ferr := s.runs.FinishSession(context.WithoutCancel(ctx), sessionID, status, msg); ferr != nil && !errors.Is(ferr, history.ErrNotFound) {
		s.logger.Warn("failed to record async result", zap.String("session_id", sessionID), zap.Error(ferr))
	}
}
