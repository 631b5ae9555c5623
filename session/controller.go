package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apexgrid/pitwall/internal/nav"
	"github.com/apexgrid/pitwall/plugin/llm"
	"github.com/apexgrid/pitwall/store"
)

// Transport streams assistant completions for a message context.
// *llm.Client satisfies it.
type Transport interface {
	Stream(ctx context.Context, messages []llm.Message, onDelta func(content string)) error
}

// Navigator exposes the current location and lets the controller move it.
// *nav.History satisfies it.
type Navigator interface {
	CurrentID() string
	NavigateTo(path string)
}

// errorReply replaces the assistant placeholder when a stream fails. The
// underlying error is logged, never shown.
const errorReply = "Sorry, I ran into a problem generating a response. Please try again."

// Controller drives the active conversation: it keeps a visible message
// buffer bound to one conversation id, mirrors every buffer change into the
// store, and streams assistant replies into the last message.
//
// The binding rule is strict: the buffer is rebuilt only when the bound
// identifier changes, never because the store emitted a new snapshot. Deltas
// arriving after the user navigated away still reach the store under their
// originating conversation but never touch the new buffer.
type Controller struct {
	store     *store.Store
	transport Transport
	nav       Navigator

	mu       sync.Mutex
	buffer   []store.Message
	boundID  string
	nextID   int
	sending  bool
	onRender func()

	newID func() string
	now   func() time.Time
}

func NewController(st *store.Store, transport Transport, navigator Navigator) *Controller {
	return &Controller{
		store:     st,
		transport: transport,
		nav:       navigator,
		buffer:    []store.Message{},
		nextID:    1,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// OnRender registers the callback fired after every visible buffer change.
func (c *Controller) OnRender(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRender = fn
}

// Bind points the controller at a conversation id and rebuilds the buffer
// from the store. An empty id enters the new-chat state: empty buffer, no
// binding, ids restarting at 1. An id unknown to the store is created on the
// spot, so a deep link to a fresh conversation works.
func (c *Controller) Bind(ctx context.Context, id string) {
	if id == "" {
		c.mu.Lock()
		c.boundID = ""
		c.buffer = []store.Message{}
		c.nextID = 1
		c.mu.Unlock()
		c.render()
		return
	}

	conv, ok := c.store.Get(id)
	if !ok {
		conv = c.store.CreateConversation(ctx, id)
	} else {
		c.store.SetCurrent(id)
	}

	c.mu.Lock()
	c.boundID = id
	c.buffer = make([]store.Message, len(conv.Messages))
	copy(c.buffer, conv.Messages)
	next := 1
	for _, msg := range conv.Messages {
		if msg.ID >= next {
			next = msg.ID + 1
		}
	}
	c.nextID = next
	c.mu.Unlock()
	c.render()
}

// Resync aligns the binding with the navigator's current location. It rebinds
// only when the identifier actually changed; store updates for the already
// bound conversation never cause a rebuild, which is what keeps an in-flight
// stream from resetting its own buffer.
func (c *Controller) Resync(ctx context.Context) {
	id := c.nav.CurrentID()
	c.mu.Lock()
	same := id == c.boundID
	c.mu.Unlock()
	if same {
		return
	}
	c.Bind(ctx, id)
}

// SendMessage appends the user's text and streams the assistant reply into a
// placeholder message. Empty input and re-entrant sends are ignored. In the
// new-chat state the conversation is created and navigated to before the
// first message lands, so the location bar and the store agree immediately.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil
	}
	c.sending = true

	if c.boundID == "" {
		id := c.newID()
		c.boundID = id
		c.buffer = []store.Message{}
		c.nextID = 1
		c.mu.Unlock()
		c.store.CreateConversation(ctx, id)
		c.nav.NavigateTo(nav.ConversationPath(id))
		c.mu.Lock()
	}
	id := c.boundID

	stamp := c.now().Format("15:04")
	c.buffer = append(c.buffer,
		store.Message{ID: c.nextID, Role: store.RoleUser, Content: text, Timestamp: stamp},
		store.Message{ID: c.nextID + 1, Role: store.RoleAssistant, Content: "", Timestamp: stamp},
	)
	c.nextID += 2

	// msgs shares its backing array with the buffer. If a navigation swaps
	// the buffer out mid-stream, deltas keep landing in msgs and flow to the
	// store under the originating id, while the new buffer stays untouched.
	msgs := c.buffer
	turns := make([]llm.Message, 0, len(msgs)-1)
	for _, msg := range msgs[:len(msgs)-1] {
		turns = append(turns, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
		c.render()
	}()

	c.flush(ctx, id, msgs)

	err := c.transport.Stream(ctx, turns, func(content string) {
		c.mu.Lock()
		msgs[len(msgs)-1].Content += content
		live := c.boundID == id
		c.mu.Unlock()
		c.flush(ctx, id, msgs)
		if live {
			c.render()
		}
	})

	c.mu.Lock()
	last := &msgs[len(msgs)-1]
	if err != nil {
		last.Content = errorReply
		last.HasAction = false
	} else {
		last.HasAction = detectAction(last.Content)
	}
	c.mu.Unlock()
	c.flush(ctx, id, msgs)

	if err != nil {
		slog.Warn("assistant stream failed", "conversation", id, "error", err)
		return err
	}
	return nil
}

// Messages returns a copy of the visible buffer.
func (c *Controller) Messages() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Message, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// BoundID returns the bound conversation id, or "" in the new-chat state.
func (c *Controller) BoundID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundID
}

// Sending reports whether a stream is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// flush mirrors a message slice into the store under the given id.
func (c *Controller) flush(ctx context.Context, id string, msgs []store.Message) {
	c.mu.Lock()
	snapshot := make([]store.Message, len(msgs))
	copy(snapshot, msgs)
	c.mu.Unlock()
	c.store.UpdateMessages(ctx, id, snapshot)
}

func (c *Controller) render() {
	c.mu.Lock()
	fn := c.onRender
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// actionHints are the substrings that mark a reply as referencing live data.
var actionHints = []string{"telemetry", "data", "comparison"}

func detectAction(content string) bool {
	lower := strings.ToLower(content)
	for _, hint := range actionHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
