package nav

import (
	"strings"
	"sync"
)

const conversationPrefix = "/c/"

// ParseConversationID extracts the conversation id from a path like "/c/<id>".
// Any other path yields "".
func ParseConversationID(path string) string {
	if !strings.HasPrefix(path, conversationPrefix) {
		return ""
	}
	id := strings.TrimPrefix(path, conversationPrefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// ConversationPath builds the canonical path for a conversation id.
func ConversationPath(id string) string {
	return conversationPrefix + id
}

// History tracks the current location and tells listeners when it moves.
// It is the in-process equivalent of a browser history: NavigateTo pushes a
// new location, OnChange observes every transition.
type History struct {
	mu       sync.Mutex
	path     string
	onChange []func(path string)
}

func NewHistory() *History {
	return &History{path: "/"}
}

// CurrentID returns the conversation id of the current location, or "" when
// the location is not a conversation path.
func (h *History) CurrentID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ParseConversationID(h.path)
}

// Path returns the current location.
func (h *History) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// NavigateTo moves to the given path and fires change listeners. Navigating
// to the current path is a no-op.
func (h *History) NavigateTo(path string) {
	h.mu.Lock()
	if h.path == path {
		h.mu.Unlock()
		return
	}
	h.path = path
	listeners := make([]func(string), len(h.onChange))
	copy(listeners, h.onChange)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(path)
	}
}

// OnChange registers a listener invoked after every location change.
// Listeners run outside the history lock.
func (h *History) OnChange(fn func(path string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}
