package store

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Store is the single authoritative collection of conversations, mirrored to
// a persistence driver. All mutations go through the operations below; the
// store is the single writer for its slot.
type Store struct {
	driver Driver

	mu            sync.Mutex
	conversations map[string]*Conversation
	currentID     string
	hydrated      bool
	nextSeq       int64
	subscribers   []func()

	now func() time.Time
}

// New creates a store over the given driver. The store is empty and will not
// persist anything until Hydrate has run.
func New(driver Driver) *Store {
	return &Store{
		driver:        driver,
		conversations: make(map[string]*Conversation),
		nextSeq:       1,
		now:           time.Now,
	}
}

type storeDocument struct {
	Conversations []*Conversation `json:"conversations"`
}

// Hydrate populates the store from the persistent slot. Corrupt data is
// discarded with a warning and the store starts empty; only a driver I/O
// failure is returned. No write-back happens before hydration completes,
// so a failed load can never clobber previously persisted data.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok, err := s.driver.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load conversation slot")
	}
	if ok {
		var doc storeDocument
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			slog.Warn("discarding corrupt conversation data", "error", err)
		} else {
			for _, conv := range doc.Conversations {
				if conv == nil || conv.ID == "" {
					continue
				}
				if conv.Messages == nil {
					conv.Messages = []Message{}
				}
				s.conversations[conv.ID] = conv
				if conv.Seq >= s.nextSeq {
					s.nextSeq = conv.Seq + 1
				}
			}
		}
	}
	s.hydrated = true
	return nil
}

// CreateConversation inserts a new conversation under id, or returns the
// existing one unchanged. The created/existing conversation becomes current.
func (s *Store) CreateConversation(ctx context.Context, id string) *Conversation {
	s.mu.Lock()
	if conv, ok := s.conversations[id]; ok {
		s.currentID = id
		out := conv.clone()
		s.mu.Unlock()
		return out
	}

	conv := &Conversation{
		ID:           id,
		Title:        DefaultTitle,
		Messages:     []Message{},
		LastActivity: s.now().UnixMilli(),
		Seq:          s.nextSeq,
	}
	s.nextSeq++
	s.conversations[id] = conv
	s.currentID = id
	s.persistLocked(ctx)
	out := conv.clone()
	s.mu.Unlock()

	s.notify()
	return out
}

// UpdateMessages replaces the stored message list. It is a no-op when the id
// is unknown or when the serialized content is identical to what is already
// stored, so repeated synchronization from the session layer cannot churn
// LastActivity or the persistent slot. The first user message also derives
// the title while it is still the default sentinel.
func (s *Store) UpdateMessages(ctx context.Context, id string, messages []Message) {
	if messages == nil {
		messages = []Message{}
	}

	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		slog.Warn("update messages for unknown conversation", "id", id)
		return
	}

	incoming, err := json.Marshal(messages)
	if err != nil {
		s.mu.Unlock()
		slog.Warn("failed to serialize messages", "id", id, "error", err)
		return
	}
	stored, _ := json.Marshal(conv.Messages)
	if bytes.Equal(incoming, stored) {
		s.mu.Unlock()
		return
	}

	conv.Messages = make([]Message, len(messages))
	copy(conv.Messages, messages)
	conv.LastActivity = s.now().UnixMilli()

	if conv.Title == DefaultTitle {
		for _, msg := range conv.Messages {
			if msg.Role == RoleUser && msg.Content != "" {
				conv.Title = DeriveTitle(msg.Content)
				break
			}
		}
	}

	s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
}

// UpdateTitle replaces the title. No-op for an unknown id or an unchanged title.
func (s *Store) UpdateTitle(ctx context.Context, id string, title string) {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		slog.Warn("update title for unknown conversation", "id", id)
		return
	}
	if conv.Title == title {
		s.mu.Unlock()
		return
	}
	conv.Title = title
	s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
}

// UpdateViewState replaces the telemetry panel selection. The payload is
// opaque JSON and round-trips unchanged.
func (s *Store) UpdateViewState(ctx context.Context, id string, state json.RawMessage) {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		slog.Warn("update view state for unknown conversation", "id", id)
		return
	}
	if bytes.Equal(conv.ViewState, state) {
		s.mu.Unlock()
		return
	}
	conv.ViewState = make(json.RawMessage, len(state))
	copy(conv.ViewState, state)
	s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
}

// Get returns a copy of the conversation, or ok=false.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return conv.clone(), true
}

// ListAll returns all conversations ordered by LastActivity descending.
// Conversations with equal timestamps keep their insertion order.
func (s *Store) ListAll() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		list = append(list, conv.clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].LastActivity != list[j].LastActivity {
			return list[i].LastActivity > list[j].LastActivity
		}
		return list[i].Seq < list[j].Seq
	})
	return list
}

// Remove deletes the conversation. If it was current, the active pointer is
// cleared. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conversations, id)
	if s.currentID == id {
		s.currentID = ""
	}
	s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
}

// CurrentID returns the active conversation id, or "" when none is active.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// SetCurrent marks an existing conversation as active. Unknown ids are ignored.
func (s *Store) SetCurrent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; ok {
		s.currentID = id
	}
}

// Subscribe registers a change callback invoked after every mutation. The
// returned function removes the subscription. Callbacks run outside the
// store lock and must not assume which mutation fired them.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
	idx := len(s.subscribers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

// persistLocked writes the whole store back to the slot. Failures degrade to
// an in-memory session: they are logged, never returned. Callers must hold mu.
func (s *Store) persistLocked(ctx context.Context) {
	if !s.hydrated {
		return
	}

	doc := storeDocument{Conversations: make([]*Conversation, 0, len(s.conversations))}
	for _, conv := range s.conversations {
		doc.Conversations = append(doc.Conversations, conv)
	}
	sort.Slice(doc.Conversations, func(i, j int) bool {
		return doc.Conversations[i].Seq < doc.Conversations[j].Seq
	})

	value, err := json.Marshal(doc)
	if err != nil {
		slog.Error("failed to serialize conversation store", "error", err)
		return
	}
	if err := s.driver.Save(ctx, string(value)); err != nil {
		slog.Error("failed to persist conversation store", "error", err)
	}
}

// Close flushes nothing (every mutation already did) and closes the driver.
func (s *Store) Close() error {
	return s.driver.Close()
}
