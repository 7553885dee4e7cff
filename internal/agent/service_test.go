package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/history"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
	"github.com/ChamsBouzaiene/sensei/internal/project"
)

// fakeClient is an in-memory SessionClient.
type fakeClient struct {
	mu sync.Mutex

	healthErr  error
	createErr  error
	sendErr    error
	reply      string
	messages   []opencode.Message
	providers  []opencode.Provider
	created    []string // titles
	provider   string
	model      string
	prompts    []string
	asyncSends int
	deleted    []string
}

func (f *fakeClient) HealthCheck(ctx context.Context) (*opencode.Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &opencode.Health{Healthy: true, Version: "test"}, nil
}

func (f *fakeClient) AvailableProviders(ctx context.Context) ([]opencode.Provider, error) {
	return f.providers, nil
}

func (f *fakeClient) CreateSession(ctx context.Context, title, providerID, modelID string) (*opencode.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, title)
	f.provider, f.model = providerID, modelID
	return &opencode.Session{ID: "ses_1", Title: title}, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, sessionID, text string, opts opencode.SendOptions) (*opencode.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &opencode.Message{
		Info: opencode.MessageInfo{ID: "m1", Role: opencode.RoleAssistant},
		Parts: []opencode.MessagePart{
			{Type: opencode.PartReasoning, Reasoning: "hidden"},
			{Type: opencode.PartText, Text: f.reply},
		},
	}, nil
}

func (f *fakeClient) SendMessageAsync(ctx context.Context, sessionID, text string, opts opencode.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	f.asyncSends++
	return f.sendErr
}

func (f *fakeClient) Messages(ctx context.Context, sessionID string, limit int) ([]opencode.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages, nil
}

func (f *fakeClient) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sessionID)
	return true, nil
}

type staticConfig config.Remote

func (c staticConfig) Get() config.Remote { return config.Remote(c) }

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		name := e.Name
		if e.Name == notify.AgentProgress {
			name += ":" + e.Payload["stage"].(string)
		}
		out = append(out, name)
	}
	return out
}

type harness struct {
	svc      *Service
	client   *fakeClient
	events   *recorder
	projects *project.Store
	runs     *history.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	projects, err := project.NewStore(filepath.Join(t.TempDir(), "projects"), nil)
	if err != nil {
		t.Fatalf("project store: %v", err)
	}
	runs, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	h := &harness{
		client:   &fakeClient{reply: "# Requirements\n\n- login"},
		events:   &recorder{},
		projects: projects,
		runs:     runs,
	}
	h.svc, err = NewService(Deps{
		Config:    staticConfig{ServerURL: "http://agent", Username: "opencode", DefaultProvider: "anthropic", DefaultModel: "claude"},
		Projects:  projects,
		NewClient: func(config.Remote) SessionClient { return h.client },
		Notifier:  h.events,
		Runs:      runs,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return h
}

func (h *harness) createProject(t *testing.T, rootPath string) *project.Project {
	t.Helper()
	p, err := h.projects.Create("demo", "demo project", rootPath)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (h *harness) lastRun(t *testing.T) history.Run {
	t.Helper()
	runs, err := h.runs.List(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v, %v", runs, err)
	}
	return runs[0]
}

func TestUpdateRequirement_WritesDocument(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")

	resp, err := h.svc.UpdateRequirement(context.Background(), p.ID, "add login")
	if err != nil {
		t.Fatalf("UpdateRequirement failed: %v", err)
	}

	reqPath := filepath.Join(h.projects.ProjectDir(p.ID), project.RequirementFile)
	if !resp.Success || resp.FileModified != reqPath || resp.DocumentContent != h.client.reply {
		t.Errorf("unexpected response %+v", resp)
	}
	data, err := os.ReadFile(reqPath)
	if err != nil || string(data) != h.client.reply {
		t.Errorf("requirement.md = %q, %v", data, err)
	}

	// The project was created with an initial document, so the update template is used.
	if len(h.client.prompts) != 1 || !strings.Contains(h.client.prompts[0], "Current requirements document") {
		t.Errorf("expected update prompt, got %v", h.client.prompts)
	}
	if h.client.created[0] != TitleRequirement || h.client.provider != "anthropic" || h.client.model != "claude" {
		t.Errorf("session created with %v %s/%s", h.client.created, h.client.provider, h.client.model)
	}
	if len(h.client.deleted) != 1 {
		t.Errorf("session should be deleted once, got %v", h.client.deleted)
	}

	want := "agent-progress:start,agent-progress:analyzing,agent-progress:processing,requirement-updated,agent-progress:done"
	if got := strings.Join(h.events.names(), ","); got != want {
		t.Errorf("events = %s\nwant %s", got, want)
	}
	if run := h.lastRun(t); run.Status != history.StatusSucceeded || run.SessionID != "ses_1" {
		t.Errorf("run = %+v", run)
	}
}

func TestUpdateRequirement_CreateTemplateUnderRootPath(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	p := h.createProject(t, root)

	if _, err := h.svc.UpdateRequirement(context.Background(), p.ID, "a todo app"); err != nil {
		t.Fatalf("UpdateRequirement failed: %v", err)
	}
	if !strings.Contains(h.client.prompts[0], "Write a requirements document") {
		t.Errorf("expected create prompt, got %q", h.client.prompts[0])
	}
	if _, err := os.Stat(filepath.Join(root, project.RequirementFile)); err != nil {
		t.Errorf("requirement.md should be under root_path: %v", err)
	}
}

func TestUpdateRequirement_Failures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*fakeClient)
		projectID   string
		wantErr     error
		wantContain string
		wantDeleted int
		wantCreated int
	}{
		{
			name:      "missing project",
			projectID: "does-not-exist",
			wantErr:   ErrProjectNotFound,
		},
		{
			name:        "server down",
			setup:       func(f *fakeClient) { f.healthErr = errors.New("connection refused") },
			wantContain: "health check",
		},
		{
			name:        "create fails",
			setup:       func(f *fakeClient) { f.createErr = errors.New("500") },
			wantContain: "create session",
		},
		{
			name:        "send fails after session creation",
			setup:       func(f *fakeClient) { f.sendErr = errors.New("timeout") },
			wantContain: "send message",
			wantDeleted: 1,
			wantCreated: 1,
		},
		{
			name:        "empty reply",
			setup:       func(f *fakeClient) { f.reply = "" },
			wantErr:     ErrEmptyResponse,
			wantDeleted: 1,
			wantCreated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			p := h.createProject(t, "")
			before, _ := h.projects.ReadDocument(p.ID, project.DocRequirement)
			if tt.setup != nil {
				tt.setup(h.client)
			}
			id := p.ID
			if tt.projectID != "" {
				id = tt.projectID
			}

			_, err := h.svc.UpdateRequirement(context.Background(), id, "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantContain != "" && !strings.Contains(err.Error(), tt.wantContain) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantContain)
			}
			if len(h.client.created) != tt.wantCreated {
				t.Errorf("sessions created = %d, want %d", len(h.client.created), tt.wantCreated)
			}
			if len(h.client.deleted) != tt.wantDeleted {
				t.Errorf("sessions deleted = %d, want %d", len(h.client.deleted), tt.wantDeleted)
			}
			after, _ := h.projects.ReadDocument(p.ID, project.DocRequirement)
			if after != before {
				t.Error("requirement document should be untouched on failure")
			}
			if run := h.lastRun(t); run.Status != history.StatusFailed || run.Error == "" {
				t.Errorf("run = %+v", run)
			}
		})
	}
}

func TestRequirementAsyncThenFinish(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")
	ctx := context.Background()

	sessionID, err := h.svc.UpdateRequirementAsync(ctx, p.ID, "add search")
	if err != nil {
		t.Fatalf("UpdateRequirementAsync failed: %v", err)
	}
	if sessionID != "ses_1" || h.client.asyncSends != 1 || len(h.client.deleted) != 0 {
		t.Errorf("session=%s async=%d deleted=%v", sessionID, h.client.asyncSends, h.client.deleted)
	}
	if run := h.lastRun(t); run.Status != history.StatusPending {
		t.Errorf("async run status = %s, want pending", run.Status)
	}

	if _, err := h.svc.FinishRequirement(ctx, p.ID, sessionID); !errors.Is(err, ErrNoReply) {
		t.Errorf("FinishRequirement before reply = %v, want ErrNoReply", err)
	}

	h.client.messages = []opencode.Message{
		{Info: opencode.MessageInfo{ID: "u", Role: opencode.RoleUser}, Parts: []opencode.MessagePart{{Type: "text", Text: "prompt"}}},
		{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant, Time: opencode.MessageTime{Completed: "1730000000000"}}, Parts: []opencode.MessagePart{{Type: "text", Text: "# Updated"}}},
	}
	resp, err := h.svc.FinishRequirement(ctx, p.ID, sessionID)
	if err != nil {
		t.Fatalf("FinishRequirement failed: %v", err)
	}
	if resp.DocumentContent != "# Updated" || len(h.client.deleted) != 1 {
		t.Errorf("resp=%+v deleted=%v", resp, h.client.deleted)
	}
	if run := h.lastRun(t); run.Status != history.StatusSucceeded {
		t.Errorf("run status after finish = %s", run.Status)
	}
}

func TestFinishRequirement_WaitsForCompletedReply(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")
	ctx := context.Background()
	before, _ := h.projects.ReadDocument(p.ID, project.DocRequirement)

	sessionID, err := h.svc.UpdateRequirementAsync(ctx, p.ID, "add search")
	if err != nil {
		t.Fatalf("UpdateRequirementAsync failed: %v", err)
	}

	user := opencode.Message{Info: opencode.MessageInfo{ID: "u", Role: opencode.RoleUser}, Parts: []opencode.MessagePart{{Type: "text", Text: "prompt"}}}
	tests := []struct {
		name      string
		assistant opencode.Message
	}{
		{
			name:      "generation started",
			assistant: opencode.Message{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant}, Parts: []opencode.MessagePart{{Type: "step-start"}}},
		},
		{
			name:      "partial text",
			assistant: opencode.Message{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant}, Parts: []opencode.MessagePart{{Type: "text", Text: "# Requi"}}},
		},
		{
			name:      "status running",
			assistant: opencode.Message{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant, Status: "running", Finish: "stop"}, Parts: []opencode.MessagePart{{Type: "text", Text: "# Requi"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.client.mu.Lock()
			h.client.messages = []opencode.Message{user, tt.assistant}
			h.client.mu.Unlock()

			if _, err := h.svc.FinishRequirement(ctx, p.ID, sessionID); !errors.Is(err, ErrNoReply) {
				t.Errorf("FinishRequirement = %v, want ErrNoReply", err)
			}
			if len(h.client.deleted) != 0 {
				t.Errorf("session deleted while still running: %v", h.client.deleted)
			}
			if after, _ := h.projects.ReadDocument(p.ID, project.DocRequirement); after != before {
				t.Errorf("requirement document changed to %q", after)
			}
			if run := h.lastRun(t); run.Status != history.StatusPending {
				t.Errorf("run status = %s, want pending", run.Status)
			}
		})
	}

	h.client.mu.Lock()
	h.client.messages = []opencode.Message{user, {
		Info:  opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant, Finish: "stop"},
		Parts: []opencode.MessagePart{{Type: "text", Text: "# Requirements"}},
	}}
	h.client.mu.Unlock()
	resp, err := h.svc.FinishRequirement(ctx, p.ID, sessionID)
	if err != nil || resp.DocumentContent != "# Requirements" || len(h.client.deleted) != 1 {
		t.Errorf("FinishRequirement = %+v, %v, deleted %v", resp, err, h.client.deleted)
	}
}

func TestGenerateCode(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")
	h.client.reply = "Changed main.go"

	resp, err := h.svc.GenerateCode(context.Background(), p.ID, "write hello world")
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if resp.Message != "Changed main.go" || !resp.Success {
		t.Errorf("unexpected response %+v", resp)
	}
	prompt := h.client.prompts[0]
	for _, want := range []string{h.projects.ProjectDir(p.ID), "write hello world", "Requirements document"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if h.client.created[0] != TitleCodegen || len(h.client.deleted) != 1 {
		t.Errorf("created=%v deleted=%v", h.client.created, h.client.deleted)
	}

	want := "agent-progress:start,agent-progress:analyzing,agent-progress:working,files-operation-completed,agent-progress:done"
	if got := strings.Join(h.events.names(), ","); got != want {
		t.Errorf("events = %s\nwant %s", got, want)
	}
}

func TestGenerateCode_EmptySummaryIsNotAnError(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, t.TempDir())
	h.client.reply = ""

	resp, err := h.svc.GenerateCode(context.Background(), p.ID, "refactor")
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if !resp.Success || resp.Message != "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.Contains(h.client.prompts[0], "Create or change files in the project according to the user request") {
		t.Error("expected the codegen create template without requirement")
	}
}

func TestGenerateCodeAsync(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")
	ctx := context.Background()

	sessionID, err := h.svc.GenerateCodeAsync(ctx, p.ID, "add tests")
	if err != nil {
		t.Fatalf("GenerateCodeAsync failed: %v", err)
	}
	if sessionID != "ses_1" || len(h.client.deleted) != 0 {
		t.Errorf("session=%s deleted=%v", sessionID, h.client.deleted)
	}

	var started *notify.Event
	for _, e := range h.events.events {
		if e.Name == notify.AgentTaskStarted {
			e := e
			started = &e
		}
	}
	if started == nil || started.Payload["session_id"] != "ses_1" || started.Payload["project_id"] != p.ID {
		t.Fatalf("agent-task-started missing or wrong: %+v", started)
	}

	h.client.messages = []opencode.Message{
		{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant}, Parts: []opencode.MessagePart{{Type: "text", Text: "adding"}}},
	}
	if _, err := h.svc.FinishCodegen(ctx, p.ID, sessionID); !errors.Is(err, ErrNoReply) || len(h.client.deleted) != 0 {
		t.Errorf("FinishCodegen while running = %v, deleted %v", err, h.client.deleted)
	}

	h.client.messages = []opencode.Message{
		{Info: opencode.MessageInfo{ID: "a", Role: opencode.RoleAssistant, Time: opencode.MessageTime{Completed: "1730000000000"}}, Parts: []opencode.MessagePart{{Type: "text", Text: "added tests"}}},
	}
	resp, err := h.svc.FinishCodegen(ctx, p.ID, sessionID)
	if err != nil || resp.Message != "added tests" {
		t.Fatalf("FinishCodegen = %+v, %v", resp, err)
	}
	if len(h.client.deleted) != 1 {
		t.Errorf("deleted = %v", h.client.deleted)
	}
}

func TestGenerateCodeAsync_SendFailureDeletesSession(t *testing.T) {
	h := newHarness(t)
	p := h.createProject(t, "")
	h.client.sendErr = errors.New("503")

	if _, err := h.svc.GenerateCodeAsync(context.Background(), p.ID, "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(h.client.deleted) != 1 {
		t.Errorf("deleted = %v, want one cleanup", h.client.deleted)
	}
	for _, name := range h.events.names() {
		if name == notify.AgentTaskStarted {
			t.Error("agent-task-started should not be emitted on failure")
		}
	}
}

func TestTestConnection(t *testing.T) {
	h := newHarness(t)

	if _, err := h.svc.TestConnection(context.Background(), config.Remote{ServerURL: "http://agent/"}); err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	h.client.healthErr = errors.New("refused")
	if _, err := h.svc.TestConnection(context.Background(), config.Remote{ServerURL: "http://agent"}); err == nil {
		t.Fatal("expected error")
	}

	want := "opencode-test-start,opencode-test-success,opencode-test-start,opencode-test-error"
	if got := strings.Join(h.events.names(), ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if h.events.events[0].Payload["server_url"] != "http://agent" {
		t.Errorf("server url not normalized: %v", h.events.events[0].Payload)
	}
}

func TestConcurrentSagas(t *testing.T) {
	h := newHarness(t)
	p1 := h.createProject(t, "")
	p2 := h.createProject(t, "")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{p1.ID, p2.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.svc.UpdateRequirement(context.Background(), id, "x")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("saga failed: %v", err)
		}
	}
}
