// Package protocol defines the NDJSON messages exchanged with the desktop
// shell over stdio.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
)

// CommandType enumerates all supported shell -> engine commands.
type CommandType string

const (
	CommandListProjects       CommandType = "list_projects"
	CommandCreateProject      CommandType = "create_project"
	CommandDeleteProject      CommandType = "delete_project"
	CommandGetProjectFiles    CommandType = "get_project_files"
	CommandReadDocument       CommandType = "read_document"
	CommandWriteDocument      CommandType = "write_document"
	CommandUpdateRequirement  CommandType = "update_requirement"
	CommandFinishRequirement  CommandType = "finish_requirement"
	CommandGenerateCode       CommandType = "generate_code"
	CommandFinishCodegen      CommandType = "finish_codegen"
	CommandGetSessionMessages CommandType = "get_session_messages"
	CommandGetConfig          CommandType = "get_config"
	CommandSaveConfig         CommandType = "save_config"
	CommandTestConnection     CommandType = "test_connection"
	CommandGetProviders       CommandType = "get_providers"
)

// Command is implemented by all protocol commands.
type Command interface {
	GetType() CommandType
	GetRequestID() string
}

// Base carries the fields shared by every command.
type Base struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
}

// GetType implements Command.
func (b Base) GetType() CommandType { return b.Type }

// GetRequestID implements Command.
func (b Base) GetRequestID() string { return b.RequestID }

// ListProjectsCommand lists all projects.
type ListProjectsCommand struct {
	Base
}

// CreateProjectCommand creates a project.
type CreateProjectCommand struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RootPath    string `json:"root_path,omitempty"`
}

// ProjectCommand addresses one project. It is used by delete_project and
// get_project_files.
type ProjectCommand struct {
	Base
	ProjectID string `json:"project_id"`
}

// DocumentCommand reads or writes a project document.
type DocumentCommand struct {
	Base
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content,omitempty"`
}

// AgentCommand starts a requirement update or code generation.
type AgentCommand struct {
	Base
	ProjectID string `json:"project_id"`
	Input     string `json:"input"`
	Async     bool   `json:"async,omitempty"`
}

// FinishCommand collects the reply of an async session.
type FinishCommand struct {
	Base
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
}

// SessionMessagesCommand polls the messages of a session.
type SessionMessagesCommand struct {
	Base
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

// GetConfigCommand returns the current connection settings.
type GetConfigCommand struct {
	Base
}

// SaveConfigCommand persists connection settings.
type SaveConfigCommand struct {
	Base
	Config config.Remote `json:"config"`
}

// RemoteCommand targets a server. A nil Config means the saved settings.
// It is used by test_connection and get_providers.
type RemoteCommand struct {
	Base
	Config *config.Remote `json:"config,omitempty"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base Base
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	var (
		cmd      Command
		validate func() error
	)
	switch base.Type {
	case CommandListProjects:
		cmd = &ListProjectsCommand{}
	case CommandCreateProject:
		c := &CreateProjectCommand{}
		cmd, validate = c, func() error { return require(c.Name, "name") }
	case CommandDeleteProject, CommandGetProjectFiles:
		c := &ProjectCommand{}
		cmd, validate = c, func() error { return require(c.ProjectID, "project_id") }
	case CommandReadDocument, CommandWriteDocument:
		c := &DocumentCommand{}
		cmd, validate = c, func() error {
			return errors.Join(require(c.ProjectID, "project_id"), require(c.Kind, "kind"))
		}
	case CommandUpdateRequirement, CommandGenerateCode:
		c := &AgentCommand{}
		cmd, validate = c, func() error {
			return errors.Join(require(c.ProjectID, "project_id"), require(c.Input, "input"))
		}
	case CommandFinishRequirement, CommandFinishCodegen:
		c := &FinishCommand{}
		cmd, validate = c, func() error {
			return errors.Join(require(c.ProjectID, "project_id"), require(c.SessionID, "session_id"))
		}
	case CommandGetSessionMessages:
		c := &SessionMessagesCommand{}
		cmd, validate = c, func() error { return require(c.SessionID, "session_id") }
	case CommandGetConfig:
		cmd = &GetConfigCommand{}
	case CommandSaveConfig:
		c := &SaveConfigCommand{}
		cmd, validate = c, func() error { return require(c.Config.ServerURL, "config.server_url") }
	case CommandTestConnection, CommandGetProviders:
		cmd = &RemoteCommand{}
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}

	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	if validate != nil {
		if err := validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", base.Type, err)
		}
	}
	return cmd, nil
}

func require(value, field string) error {
	if value == "" {
		return fmt.Errorf("requires %s", field)
	}
	return nil
}

// NewRequestID generates an opaque request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// EventType enumerates engine -> shell events.
type EventType string

const (
	EventStatus       EventType = "status"
	EventResult       EventType = "result"
	EventError        EventType = "error"
	EventNotification EventType = "notification"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
}

func (eventBase) isEvent() {}

// GetType implements Event.
func (e eventBase) GetType() EventType { return e.Type }

// StatusEvent communicates coarse engine state.
type StatusEvent struct {
	eventBase
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(status, detail string) StatusEvent {
	return StatusEvent{
		eventBase: eventBase{Type: EventStatus},
		Status:    status,
		Detail:    detail,
	}
}

// ResultEvent answers a command.
type ResultEvent struct {
	eventBase
	Data any `json:"data,omitempty"`
}

// NewResultEvent constructs a result event.
func NewResultEvent(requestID string, data any) ResultEvent {
	return ResultEvent{
		eventBase: eventBase{Type: EventResult, RequestID: requestID},
		Data:      data,
	}
}

// ErrorEvent reports a failed command.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(requestID, message, kind, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, RequestID: requestID},
		Message:   message,
		Kind:      kind,
		Details:   details,
	}
}

// NotificationEvent forwards a backend notification.
type NotificationEvent struct {
	eventBase
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewNotificationEvent wraps a notification.
func NewNotificationEvent(e notify.Event) NotificationEvent {
	return NotificationEvent{
		eventBase: eventBase{Type: EventNotification},
		Name:      e.Name,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	}
}
