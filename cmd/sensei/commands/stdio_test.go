package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/config"
)

func newAgentServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /global/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"healthy":true,"version":"1.0.0"}`)
	})
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"ses_stdio"}`)
	})
	mux.HandleFunc("POST /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"info":{"id":"m","role":"assistant"},"parts":[{"type":"text","text":%q}]}`, reply)
	})
	mux.HandleFunc("POST /session/{id}/prompt_async", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `true`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestBackend(t *testing.T, serverURL string) *backend.Backend {
	t.Helper()
	dir := t.TempDir()
	b, err := backend.New(context.Background(), backend.Options{
		ProjectsDir: filepath.Join(dir, "projects"),
		ConfigDir:   filepath.Join(dir, "config"),
		Env:         config.Overrides{ServerURL: serverURL},
	}, nil)
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// runLines feeds lines to a runner and returns the decoded events.
func runLines(t *testing.T, b *backend.Backend, lines ...string) []map[string]any {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := newStdIORunner(in, &out, b, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("stdout line is not JSON: %q", line)
		}
		events = append(events, ev)
	}
	return events
}

func byRequest(events []map[string]any, id string) map[string]any {
	for _, ev := range events {
		if ev["request_id"] == id {
			return ev
		}
	}
	return nil
}

func TestStdIORunner(t *testing.T) {
	agentSrv := newAgentServer(t, "# Requirements")
	b := newTestBackend(t, agentSrv.URL)
	p, err := b.Projects.Create("demo", "", "")
	if err != nil {
		t.Fatal(err)
	}

	events := runLines(t, b,
		`{"type":"list_projects","request_id":"list"}`,
		`{"type":"get_config","request_id":"cfg"}`,
		`{"type":"read_document","request_id":"doc","project_id":"`+p.ID+`","kind":"requirement"}`,
		`{"type":"update_requirement","request_id":"req","project_id":"`+p.ID+`","input":"add login"}`,
		`{"type":"generate_code","request_id":"gen","project_id":"`+p.ID+`","input":"build it","async":true}`,
		`{"type":"test_connection","request_id":"ping"}`,
		`{"type":"delete_project","request_id":"gone","project_id":"missing"}`,
		`{"type":"warp_drive"}`,
		``,
	)

	if events[0]["type"] != "status" || events[0]["status"] != "engine_ready" {
		t.Errorf("first event = %v", events[0])
	}

	if ev := byRequest(events, "list"); ev == nil || ev["type"] != "result" || len(ev["data"].([]any)) != 1 {
		t.Errorf("list_projects = %v", ev)
	}
	if ev := byRequest(events, "cfg"); ev == nil || ev["data"].(map[string]any)["server_url"] != agentSrv.URL {
		t.Errorf("get_config = %v", ev)
	}
	if ev := byRequest(events, "doc"); ev == nil || !strings.Contains(ev["data"].(map[string]any)["content"].(string), "demo Requirements") {
		t.Errorf("read_document = %v", ev)
	}
	if ev := byRequest(events, "req"); ev == nil || ev["data"].(map[string]any)["document_content"] != "# Requirements" {
		t.Errorf("update_requirement = %v", ev)
	}
	if ev := byRequest(events, "gen"); ev == nil || ev["data"].(map[string]any)["session_id"] != "ses_stdio" {
		t.Errorf("generate_code = %v", ev)
	}
	if ev := byRequest(events, "ping"); ev == nil || ev["data"].(map[string]any)["version"] != "1.0.0" {
		t.Errorf("test_connection = %v", ev)
	}
	if ev := byRequest(events, "gone"); ev == nil || ev["type"] != "error" || ev["kind"] != "not_found" {
		t.Errorf("delete_project = %v", ev)
	}

	var invalid, notifications int
	names := map[string]bool{}
	for _, ev := range events {
		switch {
		case ev["type"] == "error" && ev["kind"] == "invalid_command":
			invalid++
		case ev["type"] == "notification":
			notifications++
			names[ev["name"].(string)] = true
		}
	}
	if invalid != 1 {
		t.Errorf("invalid_command errors = %d, want 1", invalid)
	}
	for _, name := range []string{"agent-progress", "requirement-updated", "agent-task-started", "opencode-test-success"} {
		if !names[name] {
			t.Errorf("missing %s notification (got %v)", name, names)
		}
	}
}

func TestStdIORunnerStopsOnCancel(t *testing.T) {
	b := newTestBackend(t, "http://127.0.0.1:1")
	in, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- newStdIORunner(in, &out, b, zap.NewNop()).Run(ctx) }()

	if _, err := io.WriteString(w, `{"type":"list_projects","request_id":"l"}`+"\n"); err != nil {
		t.Fatal(err)
	}
	// The reader is now blocked waiting for more input.
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if strings.Contains(out.String(), "stdin error") {
		t.Errorf("cancel should not report a read error: %s", out.String())
	}
}

func TestStdIORunnerReportsReadError(t *testing.T) {
	b := newTestBackend(t, "http://127.0.0.1:1")
	in := io.MultiReader(
		strings.NewReader(`{"type":"list_projects","request_id":"l"}`+"\n"),
		iotest.ErrReader(errors.New("pipe broke")),
	)
	var out bytes.Buffer
	if err := newStdIORunner(in, &out, b, zap.NewNop()).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "stdin error: pipe broke") {
		t.Errorf("missing read error event in %s", out.String())
	}
	if !strings.Contains(out.String(), `"request_id":"l"`) {
		t.Errorf("command before the error was not answered: %s", out.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
