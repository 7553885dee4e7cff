package opencode

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Part types seen in message parts.
const (
	PartText      = "text"
	PartReasoning = "reasoning"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Health is the response of GET /global/health.
type Health struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

// Session is a remote agent conversation.
type Session struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CreatedAt  Stamp  `json:"created_at,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	ModelID    string `json:"model_id,omitempty"`
}

// MessagePart is one typed fragment of a message.
type MessagePart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// MessageTime holds the server's timestamps for a message.
type MessageTime struct {
	Created   Stamp `json:"created,omitempty"`
	Completed Stamp `json:"completed,omitempty"`
}

// MessageInfo carries message metadata.
type MessageInfo struct {
	ID      string      `json:"id"`
	Role    string      `json:"role,omitempty"`
	Created Stamp       `json:"created,omitempty"`
	Status  string      `json:"status,omitempty"`
	Time    MessageTime `json:"time"`
	Finish  string      `json:"finish,omitempty"`
}

// Completed reports whether the server has finished producing the message.
// The server creates an assistant message as soon as generation starts, so
// one without a completion marker may still be growing.
func (i MessageInfo) Completed() bool {
	switch strings.ToLower(i.Status) {
	case "completed", "complete", "done", "finished":
		return true
	case "pending", "running", "in_progress", "streaming":
		return false
	}
	return i.Time.Completed != "" || i.Finish != ""
}

// Message is a session message with its parts.
type Message struct {
	Info  MessageInfo   `json:"info"`
	Parts []MessagePart `json:"parts"`
}

// Text joins the non-empty text fields of all parts with newlines.
// Reasoning content is never included.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// LastAssistant returns the most recent assistant message, if any.
func LastAssistant(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Info.Role == RoleAssistant {
			return messages[i], true
		}
	}
	return Message{}, false
}

// SendOptions select the remote agent and model for a message.
type SendOptions struct {
	Agent string
	Model string
}

type sendRequest struct {
	Agent string        `json:"agent,omitempty"`
	Model string        `json:"model,omitempty"`
	Parts []MessagePart `json:"parts"`
}

type createSessionRequest struct {
	Title      string `json:"title"`
	ProviderID string `json:"providerId,omitempty"`
	ModelID    string `json:"modelId,omitempty"`
}

// RemoteFile is an entry returned by the server's file listing.
type RemoteFile struct {
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "directory"
}

// Stamp is a timestamp the server may send as a string or a number.
type Stamp string

func (s *Stamp) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if r.Type == gjson.Null {
		*s = ""
		return nil
	}
	if r.Type == gjson.JSON {
		return fmt.Errorf("timestamp must be a string or number, got %s", r.Raw)
	}
	*s = Stamp(r.String())
	return nil
}

// Model describes one model offered by a provider.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
	Reasoning   bool   `json:"reasoning,omitempty"`
	ToolCall    bool   `json:"tool_call,omitempty"`
}

// ModelsKind tells which shape a provider's model list had on the wire.
type ModelsKind int

const (
	ModelsNone ModelsKind = iota
	ModelsStringList
	ModelsKeyedMap
)

func (k ModelsKind) String() string {
	switch k {
	case ModelsStringList:
		return "list"
	case ModelsKeyedMap:
		return "map"
	default:
		return "none"
	}
}

// Models is a provider's model list. Servers send either an array of ids
// or an object keyed by model id.
type Models struct {
	Kind  ModelsKind
	Names []string
	Keyed map[string]Model
}

// UnmarshalJSON resolves the wire shape into one of the Models kinds.
func (m *Models) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch {
	case r.Type == gjson.Null || !r.Exists():
		*m = Models{Kind: ModelsNone}
	case r.IsArray():
		// Entries that carry no id are skipped.
		names := make([]string, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			switch {
			case v.Type == gjson.String:
				names = append(names, v.String())
			case v.IsObject() && v.Get("id").Type == gjson.String:
				names = append(names, v.Get("id").String())
			}
			return true
		})
		*m = Models{Kind: ModelsStringList, Names: names}
	case r.IsObject():
		keyed := make(map[string]Model)
		r.ForEach(func(k, v gjson.Result) bool {
			keyed[k.String()] = parseModel(k.String(), v)
			return true
		})
		*m = Models{Kind: ModelsKeyedMap, Keyed: keyed}
	default:
		return fmt.Errorf("models must be an array or object, got %s", r.Raw)
	}
	return nil
}

// parseModel reads one keyed model entry. Fields with an unexpected type are
// left empty instead of failing the whole provider list.
func parseModel(key string, v gjson.Result) Model {
	model := Model{ID: key}
	if !v.IsObject() {
		return model
	}
	if id := v.Get("id"); id.Type == gjson.String && id.String() != "" {
		model.ID = id.String()
	}
	if name := v.Get("name"); name.Type == gjson.String {
		model.Name = name.String()
	}
	if date := v.Get("release_date"); date.Type == gjson.String {
		model.ReleaseDate = date.String()
	}
	model.Reasoning = v.Get("reasoning").Type == gjson.True
	model.ToolCall = v.Get("tool_call").Type == gjson.True
	return model
}

// MarshalJSON writes the models back in the shape they arrived in.
func (m Models) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ModelsStringList:
		if m.Names == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.Names)
	case ModelsKeyedMap:
		return json.Marshal(m.Keyed)
	default:
		return []byte("null"), nil
	}
}

// IDs returns the sorted model ids for either shape.
func (m Models) IDs() []string {
	var ids []string
	switch m.Kind {
	case ModelsStringList:
		ids = append(ids, m.Names...)
	case ModelsKeyedMap:
		for id := range m.Keyed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of models.
func (m Models) Len() int {
	switch m.Kind {
	case ModelsStringList:
		return len(m.Names)
	case ModelsKeyedMap:
		return len(m.Keyed)
	}
	return 0
}

// Provider is a model provider known to the agent server.
type Provider struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Models      Models `json:"models"`
}

type providerListResponse struct {
	All     []Provider      `json:"all"`
	Default json.RawMessage `json:"default,omitempty"`
}

type configProvidersResponse struct {
	Providers []Provider `json:"providers"`
}
