package store

import "encoding/json"

// Role identifies the author of a message. The same tags are used in the
// persisted form, the REST surface, and the session layer; mapping to the
// upstream API's labels happens only at the transport boundary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a conversation. IDs are unique and strictly
// increasing within their conversation; only the currently-streaming
// assistant message has its Content overwritten after creation.
type Message struct {
	ID        int    `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	// HasAction marks an assistant reply whose content suggests a
	// follow-up telemetry action is available. Set once the final
	// content is known.
	HasAction bool `json:"hasAction,omitempty"`
}

// Conversation is one user-visible chat thread.
type Conversation struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	// Messages are in insertion order, which is display order.
	Messages []Message `json:"messages"`
	// LastActivity is a unix-millisecond timestamp bumped whenever
	// messages change; it drives the sidebar ordering.
	LastActivity int64 `json:"lastActivity"`
	// Seq is the insertion sequence, used as the stable tiebreak when
	// two conversations share a LastActivity.
	Seq int64 `json:"seq"`
	// ViewState is the last-used telemetry panel selection (year, event,
	// session, drivers, lap). Opaque to the chat core, round-tripped
	// unchanged.
	ViewState json.RawMessage `json:"viewState,omitempty"`
}

// DefaultTitle is the sentinel title a conversation carries until its
// first user message arrives.
const DefaultTitle = "New Chat"

const maxTitleLength = 50

// DeriveTitle truncates the first user message into a sidebar title.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleLength {
		return content
	}
	return string(runes[:maxTitleLength]) + "..."
}

func (c *Conversation) clone() *Conversation {
	dup := *c
	dup.Messages = make([]Message, len(c.Messages))
	copy(dup.Messages, c.Messages)
	if c.ViewState != nil {
		dup.ViewState = make(json.RawMessage, len(c.ViewState))
		copy(dup.ViewState, c.ViewState)
	}
	return &dup
}
