package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/history"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
	"github.com/ChamsBouzaiene/sensei/internal/opencode"
	"github.com/ChamsBouzaiene/sensei/internal/prompts"
)

const requirementUpdatedMessage = "Requirements document updated"

// UpdateRequirement asks the agent to create or revise the project's
// requirements document, waits for the reply and writes it to disk.
func (s *Service) UpdateRequirement(ctx context.Context, projectID, input string) (resp *AgentResponse, err error) {
	r := s.begin(ctx, KindRequirement, projectID)
	defer func() { r.end(ctx, err, history.StatusSucceeded) }()

	s.progress(projectID, notify.StageStart, "Preparing requirement update")
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return nil, err
	}
	reqPath := s.projects.RequirementPath(env.project)
	current := s.readOptional(reqPath)

	if err := s.checkHealth(ctx, env); err != nil {
		return nil, err
	}
	s.progress(projectID, notify.StageAnalyzing, "Reading the current requirements")

	prompt, err := s.requirementPrompt(input, current)
	if err != nil {
		return nil, err
	}
	session, err := s.openSession(ctx, env, TitleRequirement)
	if err != nil {
		return nil, err
	}
	r.attach(ctx, session.ID)

	s.progress(projectID, notify.StageProcessing, "Generating the requirements document")
	msg, err := env.client.SendMessage(ctx, session.ID, prompt, opencode.SendOptions{})
	if err != nil {
		s.deleteSession(ctx, env.client, session.ID)
		return nil, fmt.Errorf("send message: %w", err)
	}

	text := msg.Text()
	err = s.writeRequirement(reqPath, text)
	s.deleteSession(ctx, env.client, session.ID)
	if err != nil {
		return nil, err
	}
	return s.announceRequirement(projectID, reqPath, text, session.ID), nil
}

// UpdateRequirementAsync starts a requirement update and returns the session
// id. The reply is collected later with FinishRequirement.
func (s *Service) UpdateRequirementAsync(ctx context.Context, projectID, input string) (sessionID string, err error) {
	r := s.begin(ctx, KindRequirementAsync, projectID)
	defer func() { r.end(ctx, err, history.StatusPending) }()

	s.progress(projectID, notify.StageStart, "Preparing requirement update")
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return "", err
	}
	current := s.readOptional(s.projects.RequirementPath(env.project))

	if err := s.checkHealth(ctx, env); err != nil {
		return "", err
	}
	s.progress(projectID, notify.StageAnalyzing, "Reading the current requirements")

	prompt, err := s.requirementPrompt(input, current)
	if err != nil {
		return "", err
	}
	session, err := s.openSession(ctx, env, TitleRequirement)
	if err != nil {
		return "", err
	}
	r.attach(ctx, session.ID)

	if err := env.client.SendMessageAsync(ctx, session.ID, prompt, opencode.SendOptions{}); err != nil {
		s.deleteSession(ctx, env.client, session.ID)
		return "", fmt.Errorf("send message: %w", err)
	}

	s.progress(projectID, notify.StageProcessing, "The agent is writing the requirements document")
	s.emit(notify.New(notify.AgentTaskStarted, map[string]any{
		"project_id": projectID,
		"session_id": session.ID,
		"kind":       KindRequirement,
	}))
	return session.ID, nil
}

// FinishRequirement collects the reply of an async requirement session,
// writes it and deletes the session. ErrNoReply means the agent is still
// working and the call can be retried.
func (s *Service) FinishRequirement(ctx context.Context, projectID, sessionID string) (*AgentResponse, error) {
	env, err := s.prepare(ctx, projectID)
	if err != nil {
		return nil, err
	}

	text, err := s.collectReply(ctx, env, sessionID)
	if err != nil {
		return nil, err
	}

	reqPath := s.projects.RequirementPath(env.project)
	err = s.writeRequirement(reqPath, text)
	s.deleteSession(ctx, env.client, sessionID)
	s.finishSession(ctx, sessionID, err)
	if err != nil {
		return nil, err
	}
	return s.announceRequirement(projectID, reqPath, text, sessionID), nil
}

func (s *Service) requirementPrompt(input, current string) (string, error) {
	if current == "" {
		return s.prompts.Render(prompts.RequirementCreate, map[string]string{
			prompts.VarUserInput: input,
		})
	}
	return s.prompts.Render(prompts.RequirementUpdate, map[string]string{
		prompts.VarUserInput:   input,
		prompts.VarRequirement: current,
	})
}

// writeRequirement stores a non-empty reply.
func (s *Service) writeRequirement(reqPath, text string) error {
	if text == "" {
		return ErrEmptyResponse
	}
	if err := os.MkdirAll(filepath.Dir(reqPath), 0755); err != nil {
		return fmt.Errorf("write requirement: %w", err)
	}
	if err := os.WriteFile(reqPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("write requirement: %w", err)
	}
	s.logger.Info("requirement document saved", zap.String("path", reqPath), zap.Int("bytes", len(text)))
	return nil
}

func (s *Service) announceRequirement(projectID, reqPath, text, sessionID string) *AgentResponse {
	s.touch(projectID)
	s.emit(notify.New(notify.RequirementUpdated, map[string]any{
		"project_id": projectID,
		"file_path":  reqPath,
	}))
	s.progress(projectID, notify.StageDone, requirementUpdatedMessage)

	return &AgentResponse{
		Success:         true,
		Message:         requirementUpdatedMessage,
		FileModified:    reqPath,
		DocumentContent: text,
		SessionID:       sessionID,
	}
}

// collectReply returns the text of the latest assistant message once the
// server marks it complete. Until then it returns ErrNoReply and the session
// is left alone.
func (s *Service) collectReply(ctx context.Context, env *sagaEnv, sessionID string) (string, error) {
	messages, err := env.client.Messages(ctx, sessionID, 0)
	if err != nil {
		return "", fmt.Errorf("get messages: %w", err)
	}
	last, ok := opencode.LastAssistant(messages)
	if !ok || !last.Info.Completed() {
		return "", ErrNoReply
	}
	return last.Text(), nil
}
