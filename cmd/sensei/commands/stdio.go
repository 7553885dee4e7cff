package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/protocol"
)

type stdioRunner struct {
	scanner  *bufio.Scanner
	writer   *bufio.Writer
	events   chan protocol.Event
	backend  *backend.Backend
	logger   *zap.Logger
	inflight sync.WaitGroup
}

func newStdIORunner(in io.Reader, out io.Writer, b *backend.Backend, logger *zap.Logger) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	return &stdioRunner{
		scanner: scanner,
		writer:  bufio.NewWriter(out),
		events:  make(chan protocol.Event, 256),
		backend: b,
		logger:  logger,
	}
}

// Run reads commands until in is exhausted or ctx is cancelled. Commands run
// concurrently; Run waits for the ones in flight before returning.
func (r *stdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	notifications := r.backend.Events.Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for e := range notifications {
			r.tryEmit(protocol.NewNotificationEvent(e))
		}
	}()

	r.emit(ctx, protocol.NewStatusEvent("engine_ready", "stdio protocol ready"))

	lines := make(chan string)
	go func() {
		defer close(lines)
		for r.scanner.Scan() {
			select {
			case lines <- r.scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// The reader goroutine owns the scanner until it closes lines.
	eof := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case raw, ok := <-lines:
			if !ok {
				eof = true
				break loop
			}
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			// Never block the input loop on a command.
			r.inflight.Add(1)
			go func(l string) {
				defer r.inflight.Done()
				if err := r.handleLine(ctx, l); err != nil {
					r.logger.Debug("stdio command failed", zap.Error(err))
				}
			}(line)
		}
	}

	if eof {
		if err := r.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			r.emit(ctx, protocol.NewErrorEvent("", fmt.Sprintf("stdin error: %v", err), "protocol_error", ""))
		}
	}

	r.inflight.Wait()
	r.backend.Events.Unsubscribe(notifications)
	<-forwarded
	close(r.events)
	return <-errCh
}

func (r *stdioRunner) flushEvents(errCh chan<- error) {
	for ev := range r.events {
		if err := r.writeEvent(ev); err != nil {
			errCh <- err
			// keep draining so emitters never block
			for range r.events {
			}
			return
		}
	}
	errCh <- r.writer.Flush()
}

func (r *stdioRunner) writeEvent(ev protocol.Event) error {
	payload, err := protocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return r.writer.Flush()
}

// emit queues a command answer.
func (r *stdioRunner) emit(ctx context.Context, ev protocol.Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// tryEmit queues a notification, dropping it when the buffer is full.
func (r *stdioRunner) tryEmit(ev protocol.Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("stdio: dropping event due to full buffer", zap.String("type", string(ev.GetType())))
	}
}

func (r *stdioRunner) handleLine(ctx context.Context, line string) error {
	cmd, err := protocol.DecodeCommand([]byte(line))
	if err != nil {
		r.emit(ctx, protocol.NewErrorEvent("", err.Error(), "invalid_command", truncate(line, 256)))
		return err
	}

	data, err := r.dispatch(ctx, cmd)
	if err != nil {
		r.emit(ctx, protocol.NewErrorEvent(cmd.GetRequestID(), err.Error(), backend.ErrorKind(err), string(cmd.GetType())))
		return err
	}
	r.emit(ctx, protocol.NewResultEvent(cmd.GetRequestID(), data))
	return nil
}

func (r *stdioRunner) dispatch(ctx context.Context, cmd protocol.Command) (any, error) {
	b := r.backend
	switch c := cmd.(type) {
	case *protocol.ListProjectsCommand:
		return b.Projects.List()
	case *protocol.CreateProjectCommand:
		return b.Projects.Create(c.Name, c.Description, c.RootPath)
	case *protocol.ProjectCommand:
		if c.Type == protocol.CommandDeleteProject {
			return nil, b.DeleteProject(c.ProjectID)
		}
		tree, err := b.ProjectFiles(c.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := b.Watch(c.ProjectID); err != nil {
			r.logger.Warn("cannot watch project", zap.String("project_id", c.ProjectID), zap.Error(err))
		}
		return tree, nil
	case *protocol.DocumentCommand:
		if c.Type == protocol.CommandWriteDocument {
			return nil, b.Projects.WriteDocument(c.ProjectID, c.Kind, c.Content)
		}
		content, err := b.Projects.ReadDocument(c.ProjectID, c.Kind)
		if err != nil {
			return nil, err
		}
		return map[string]string{"content": content}, nil
	case *protocol.AgentCommand:
		if c.Type == protocol.CommandGenerateCode {
			return b.RunGenerateCode(ctx, c.ProjectID, c.Input, c.Async)
		}
		return b.RunUpdateRequirement(ctx, c.ProjectID, c.Input, c.Async)
	case *protocol.FinishCommand:
		if c.Type == protocol.CommandFinishCodegen {
			return b.Agent.FinishCodegen(ctx, c.ProjectID, c.SessionID)
		}
		return b.Agent.FinishRequirement(ctx, c.ProjectID, c.SessionID)
	case *protocol.SessionMessagesCommand:
		return b.Agent.SessionMessages(ctx, c.SessionID, c.Limit)
	case *protocol.GetConfigCommand:
		return b.Config.Get().Redacted(), nil
	case *protocol.SaveConfigCommand:
		saved, err := b.SaveConfig(c.Config)
		if err != nil {
			return nil, err
		}
		return saved.Redacted(), nil
	case *protocol.RemoteCommand:
		if c.Type == protocol.CommandGetProviders {
			return b.Providers(ctx, c.Config)
		}
		return b.TestConnection(ctx, c.Config)
	default:
		return nil, fmt.Errorf("unhandled command type: %s", cmd.GetType())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
