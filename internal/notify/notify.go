// Package notify carries progress notifications from the backend to the UI.
//
// Notifications are best effort: emitting one never fails and never blocks
// the caller.
package notify

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Notification names consumed by the desktop UI.
const (
	AgentProgress           = "agent-progress"
	AgentTaskStarted        = "agent-task-started"
	RequirementUpdated      = "requirement-updated"
	FilesOperationCompleted = "files-operation-completed"
	FilesChanged            = "files-changed"
	ConnectionTestStart     = "opencode-test-start"
	ConnectionTestSuccess   = "opencode-test-success"
	ConnectionTestError     = "opencode-test-error"
)

// Progress stages reported with AgentProgress.
const (
	StageStart      = "start"
	StageAnalyzing  = "analyzing"
	StageProcessing = "processing"
	StageWorking    = "working"
	StageDone       = "done"
)

// Event is a named notification with a JSON object payload.
type Event struct {
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// New creates an event stamped with the current time.
func New(name string, payload map[string]any) Event {
	return Event{Name: name, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// Progress creates an AgentProgress event.
func Progress(projectID, stage, message string) Event {
	return New(AgentProgress, map[string]any{
		"project_id": projectID,
		"stage":      stage,
		"message":    message,
	})
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(Event) {}

// Multi fans out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// LogNotifier writes every notification to a logger at debug level.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(e Event) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("notification",
		zap.String("name", e.Name),
		zap.Any("payload", e.Payload))
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
