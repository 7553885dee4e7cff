// Package backend wires the stores, the saga service and the notification
// hub into the operations exposed by the stdio bridge and the HTTP API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/agent"
	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/history"
	"github.com/ChamsBouzaiene/sensei/internal/metrics"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
	"github.com/ChamsBouzaiene/sensei/internal/project"
	"github.com/ChamsBouzaiene/sensei/internal/search"
	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

// Backend is the process-wide set of collaborators.
type Backend struct {
	Config   *config.Store
	Projects *project.Store
	Agent    *agent.Service
	Runs     *history.Store
	Scanner  *workspace.Scanner
	Events   *notify.Broadcaster
	Search   search.Options
	Logger   *zap.Logger

	mu       sync.Mutex
	watchers map[string]*workspace.Watcher
}

// Options configure New.
type Options struct {
	ProjectsDir string
	ConfigDir   string // empty means the user config directory
	RunsPath    string // empty means <ConfigDir>/runs.db
	Env         config.Overrides
	Scan        workspace.ScanOptions
	Search      search.Options
	// Notifier receives every notification in addition to the broadcaster.
	Notifier notify.Notifier
}

// New opens every store and builds the saga service.
func New(ctx context.Context, opts Options, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var manager *config.Manager
	if opts.ConfigDir != "" {
		manager = config.NewManagerAt(opts.ConfigDir, logger)
	} else {
		m, err := config.NewManager(logger)
		if err != nil {
			return nil, err
		}
		manager = m
	}
	cfg, err := config.NewStore(manager, opts.Env, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	projectsDir := opts.ProjectsDir
	if projectsDir == "" {
		if projectsDir, err = project.DefaultDir(); err != nil {
			return nil, err
		}
	}
	projects, err := project.NewStore(projectsDir, logger)
	if err != nil {
		return nil, err
	}

	runsPath := opts.RunsPath
	if runsPath == "" {
		runsPath = filepath.Join(manager.Dir(), "runs.db")
	}
	runs, err := history.Open(ctx, runsPath)
	if err != nil {
		return nil, err
	}

	events := notify.NewBroadcaster(logger)
	notifier := notify.Multi{events, notify.LogNotifier{Logger: logger}, opts.Notifier}
	scanner := workspace.NewScanner(opts.Scan, logger)

	svc, err := agent.NewService(agent.Deps{
		Config:   cfg,
		Projects: projects,
		NewClient: agent.OpencodeClients(
			opencode.WithLogger(logger),
			opencode.WithObserver(metrics.ObserveRemote),
		),
		Notifier: notifier,
		Runs:     runs,
		Scanner:  scanner,
		Logger:   logger,
	})
	if err != nil {
		runs.Close()
		return nil, err
	}

	searchOpts := opts.Search
	if searchOpts.Logger == nil {
		searchOpts.Logger = logger
	}

	return &Backend{
		Config:   cfg,
		Projects: projects,
		Agent:    svc,
		Runs:     runs,
		Scanner:  scanner,
		Events:   events,
		Search:   searchOpts,
		Logger:   logger,
		watchers: make(map[string]*workspace.Watcher),
	}, nil
}

// Close stops all watchers and closes the run ledger.
func (b *Backend) Close() error {
	b.mu.Lock()
	for id, w := range b.watchers {
		if err := w.Stop(); err != nil {
			b.Logger.Debug("failed to stop watcher", zap.String("project_id", id), zap.Error(err))
		}
	}
	b.watchers = map[string]*workspace.Watcher{}
	b.mu.Unlock()
	return b.Runs.Close()
}

// ProjectFiles scans the content root of a project.
func (b *Backend) ProjectFiles(id string) ([]workspace.FileNode, error) {
	p, err := b.Projects.Get(id)
	if err != nil {
		return nil, err
	}
	tree, err := b.Scanner.Scan(b.Projects.ContentRoot(p))
	if err != nil {
		return nil, err
	}
	files, _ := workspace.Count(tree)
	metrics.RecordScan(files)
	return tree, nil
}

// SearchProject reindexes the content root of a project and queries it.
func (b *Backend) SearchProject(ctx context.Context, id, query string, k int) ([]search.Hit, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	p, err := b.Projects.Get(id)
	if err != nil {
		return nil, err
	}
	root := b.Projects.ContentRoot(p)
	tree, err := b.Scanner.Scan(root)
	if err != nil {
		return nil, err
	}

	idx, err := search.OpenForProject(b.Projects.ProjectDir(id), b.Search)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	if _, err := idx.Index(ctx, root, tree); err != nil {
		return nil, err
	}
	return idx.Search(query, k)
}

// SaveConfig persists new connection settings.
func (b *Backend) SaveConfig(r config.Remote) (config.Remote, error) {
	if r.ServerURL == "" {
		return config.Remote{}, errors.New("server_url is required")
	}
	return b.Config.Save(r)
}

// remote returns r, or the saved settings when r is nil.
func (b *Backend) remote(r *config.Remote) config.Remote {
	if r == nil {
		return b.Config.Get()
	}
	return *r
}

// TestConnection checks the server described by r, or the saved one.
func (b *Backend) TestConnection(ctx context.Context, r *config.Remote) (*opencode.Health, error) {
	return b.Agent.TestConnection(ctx, b.remote(r))
}

// Providers lists the providers of the server described by r, or the saved one.
func (b *Backend) Providers(ctx context.Context, r *config.Remote) ([]opencode.Provider, error) {
	return b.Agent.AvailableProviders(ctx, b.remote(r))
}

// remoteClient builds a client for the saved connection settings.
func (b *Backend) remoteClient() *opencode.Client {
	return opencode.New(b.Config.Get(),
		opencode.WithLogger(b.Logger),
		opencode.WithObserver(metrics.ObserveRemote),
	)
}

// RemoteFiles lists dir in the agent server's workspace.
func (b *Backend) RemoteFiles(ctx context.Context, dir string) ([]opencode.RemoteFile, error) {
	return b.remoteClient().ListFiles(ctx, dir)
}

// RemoteFile reads a file from the agent server's workspace.
func (b *Backend) RemoteFile(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	return b.remoteClient().ReadFile(ctx, path)
}

// RunUpdateRequirement runs the sync or async requirement saga. The async
// form returns the session id.
func (b *Backend) RunUpdateRequirement(ctx context.Context, projectID, input string, async bool) (any, error) {
	if async {
		sessionID, err := b.Agent.UpdateRequirementAsync(ctx, projectID, input)
		if err != nil {
			return nil, err
		}
		return map[string]string{"session_id": sessionID}, nil
	}
	return b.Agent.UpdateRequirement(ctx, projectID, input)
}

// RunGenerateCode runs the sync or async code generation saga.
func (b *Backend) RunGenerateCode(ctx context.Context, projectID, input string, async bool) (any, error) {
	if async {
		sessionID, err := b.Agent.GenerateCodeAsync(ctx, projectID, input)
		if err != nil {
			return nil, err
		}
		return map[string]string{"session_id": sessionID}, nil
	}
	return b.Agent.GenerateCode(ctx, projectID, input)
}

// Watch starts reporting file changes under the content root of a project as
// files-changed notifications. Watching an already watched project is a no-op.
func (b *Backend) Watch(id string) error {
	p, err := b.Projects.Get(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[id]; ok {
		return nil
	}

	w, err := workspace.NewWatcher(b.Projects.ContentRoot(p), b.Scanner, b.Logger)
	if err != nil {
		return err
	}
	w.OnChange(func(paths []string) {
		b.Events.Notify(notify.New(notify.FilesChanged, map[string]any{
			"project_id": id,
			"files":      paths,
		}))
	})
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	b.watchers[id] = w
	return nil
}

// Unwatch stops the watcher of a project, if any.
func (b *Backend) Unwatch(id string) {
	b.mu.Lock()
	w, ok := b.watchers[id]
	delete(b.watchers, id)
	b.mu.Unlock()
	if ok {
		if err := w.Stop(); err != nil {
			b.Logger.Debug("failed to stop watcher", zap.String("project_id", id), zap.Error(err))
		}
	}
}

// DeleteProject stops watching a project and removes it.
func (b *Backend) DeleteProject(id string) error {
	b.Unwatch(id)
	return b.Projects.Delete(id)
}

// ErrorKind names the class of err for transports.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, agent.ErrProjectNotFound), errors.Is(err, project.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return "not_found"
	case errors.Is(err, fs.ErrExist):
		return "conflict"
	case errors.Is(err, agent.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, agent.ErrNoReply):
		return "pending"
	case errors.Is(err, project.ErrOutsideRoot), errors.Is(err, project.ErrUnknownDocument):
		return "invalid_request"
	}
	if kind := opencode.Classify(err); kind != opencode.KindUnknown {
		return string(kind)
	}
	return "internal"
}
