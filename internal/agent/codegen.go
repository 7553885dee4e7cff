package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/history"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
	"github.com/ChamsBouzaiene/sensei/internal/project"
	"github.com/ChamsBouzaiene/sensei/internal/prompts"
	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

// GenerateCode asks the agent to change the project's files and waits for
// its summary. An empty summary is not an error.
func (s *Service) GenerateCode(ctx context.Context, projectID, input string) (resp *AgentResponse, err error) {
	r := s.begin(ctx, KindCodegen, projectID)
	defer func() { r.end(ctx, err, history.StatusSucceeded) }()

	s.progress(projectID, notify.StageStart, "Preparing code generation")
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkHealth(ctx, env); err != nil {
		return nil, err
	}

	s.progress(projectID, notify.StageAnalyzing, "Analyzing the project structure and requirements")
	prompt, err := s.codegenPrompt(env.project, input)
	if err != nil {
		return nil, err
	}
	session, err := s.openSession(ctx, env, TitleCodegen)
	if err != nil {
		return nil, err
	}
	r.attach(ctx, session.ID)

	s.progress(projectID, notify.StageWorking, "Creating and changing files")
	msg, err := env.client.SendMessage(ctx, session.ID, prompt, opencode.SendOptions{})
	s.deleteSession(ctx, env.client, session.ID)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	summary := msg.Text()
	s.completeCodegen(projectID, summary)
	return &AgentResponse{Success: true, Message: summary, SessionID: session.ID}, nil
}

// GenerateCodeAsync starts code generation and returns the session id for
// polling.
func (s *Service) GenerateCodeAsync(ctx context.Context, projectID, input string) (sessionID string, err error) {
	r := s.begin(ctx, KindCodegenAsync, projectID)
	defer func() { r.end(ctx, err, history.StatusPending) }()

	s.progress(projectID, notify.StageStart, "Preparing code generation")
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return "", err
	}
	if err := s.checkHealth(ctx, env); err != nil {
		return "", err
	}

	s.progress(projectID, notify.StageAnalyzing, "Analyzing the project structure and requirements")
	prompt, err := s.codegenPrompt(env.project, input)
	if err != nil {
		return "", err
	}
	session, err := s.openSession(ctx, env, TitleCodegen)
	if err != nil {
		return "", err
	}
	r.attach(ctx, session.ID)

	if err := env.client.SendMessageAsync(ctx, session.ID, prompt, opencode.SendOptions{}); err != nil {
		s.deleteSession(ctx, env.client, session.ID)
		return "", fmt.Errorf("send message: %w", err)
	}

	s.progress(projectID, notify.StageWorking, "The agent is creating and changing files")
	s.emit(notify.New(notify.AgentTaskStarted, map[string]any{
		"project_id": projectID,
		"session_id": session.ID,
		"kind":       KindCodegen,
	}))
	return session.ID, nil
}

// FinishCodegen collects the summary of an async code generation session and
// deletes the session. ErrNoReply means the agent is still working.
func (s *Service) FinishCodegen(ctx context.Context, projectID, sessionID string) (*AgentResponse, error) {
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return nil, err
	}
	summary, err := s.collectReply(ctx, env, sessionID)
	if err != nil {
		return nil, err
	}
	s.deleteSession(ctx, env.client, sessionID)
	s.finishSession(ctx, sessionID, nil)
	s.completeCodegen(projectID, summary)
	return &AgentResponse{Success: true, Message: summary, SessionID: sessionID}, nil
}

func (s *Service) completeCodegen(projectID, summary string) {
	s.touch(projectID)
	s.emit(notify.New(notify.FilesOperationCompleted, map[string]any{
		"project_id": projectID,
		"message":    summary,
	}))
	s.progress(projectID, notify.StageDone, "Files updated")
}

func (s *Service) codegenPrompt(p *project.Project, input string) (string, error) {
	root := s.projects.ProjectRoot(p)
	requirement := s.readOptional(s.projects.RequirementPath(p))

	tree, err := s.scanner.Scan(root)
	if err != nil {
		s.logger.Debug("cannot scan project root", zap.String("root", root), zap.Error(err))
		tree = nil
	}
	projectType := workspace.DetectProjectType(root, tree)

	vars := map[string]string{
		prompts.VarUserInput:   input,
		prompts.VarProjectRoot: root,
		prompts.VarProjectType: projectType.Describe(),
	}
	if requirement == "" {
		return s.prompts.Render(prompts.CodegenCreate, vars)
	}
	vars[prompts.VarRequirement] = requirement
	return s.prompts.Render(prompts.CodegenUpdate, vars)
}
