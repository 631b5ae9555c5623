package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryDriver is an in-process Driver recording every saved document.
type memoryDriver struct {
	mu    sync.Mutex
	value string
	ok    bool
	saves int
}

func (d *memoryDriver) Load(_ context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.ok, nil
}

func (d *memoryDriver) Save(_ context.Context, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = value
	d.ok = true
	d.saves++
	return nil
}

func (d *memoryDriver) Close() error { return nil }

func (d *memoryDriver) saveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

func newTestStore(t *testing.T) (*Store, *memoryDriver) {
	t.Helper()
	driver := &memoryDriver{}
	s := New(driver)
	require.NoError(t, s.Hydrate(context.Background()))
	return s, driver
}

func TestCreateConversationIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := s.CreateConversation(ctx, "conv-1")
	s.UpdateMessages(ctx, "conv-1", []Message{{ID: 1, Role: RoleUser, Content: "hello"}})

	again := s.CreateConversation(ctx, "conv-1")
	require.Equal(t, first.ID, again.ID)
	require.Len(t, again.Messages, 1, "re-creating must not reset messages")
	require.Equal(t, "conv-1", s.CurrentID())
}

func TestUpdateMessagesUnknownIDIsNoOp(t *testing.T) {
	s, driver := newTestStore(t)
	before := driver.saveCount()

	s.UpdateMessages(context.Background(), "ghost", []Message{{ID: 1, Role: RoleUser, Content: "hi"}})

	require.Equal(t, before, driver.saveCount())
	_, ok := s.Get("ghost")
	require.False(t, ok)
}

func TestUpdateMessagesSkipsIdenticalContent(t *testing.T) {
	s, driver := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "conv-1")

	msgs := []Message{{ID: 1, Role: RoleUser, Content: "hello", Timestamp: "10:00"}}
	s.UpdateMessages(ctx, "conv-1", msgs)

	conv, _ := s.Get("conv-1")
	activity := conv.LastActivity
	saves := driver.saveCount()

	// Advance the clock so a churn would be visible.
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	s.UpdateMessages(ctx, "conv-1", []Message{{ID: 1, Role: RoleUser, Content: "hello", Timestamp: "10:00"}})

	conv, _ = s.Get("conv-1")
	require.Equal(t, activity, conv.LastActivity, "identical content must not bump activity")
	require.Equal(t, saves, driver.saveCount(), "identical content must not persist")
}

func TestTitleDerivedFromFirstUserMessage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "conv-1")

	long := strings.Repeat("a", 71)
	s.UpdateMessages(ctx, "conv-1", []Message{{ID: 1, Role: RoleUser, Content: long}})

	conv, _ := s.Get("conv-1")
	require.Equal(t, strings.Repeat("a", 50)+"...", conv.Title)

	// A later user message must not overwrite the derived title.
	s.UpdateMessages(ctx, "conv-1", []Message{
		{ID: 1, Role: RoleUser, Content: long},
		{ID: 2, Role: RoleAssistant, Content: "sure"},
		{ID: 3, Role: RoleUser, Content: "something else"},
	})
	conv, _ = s.Get("conv-1")
	require.Equal(t, strings.Repeat("a", 50)+"...", conv.Title)
}

func TestDeriveTitleShortContentKeptVerbatim(t *testing.T) {
	require.Equal(t, "Who won in Monza?", DeriveTitle("Who won in Monza?"))
	require.Equal(t, strings.Repeat("b", 50), DeriveTitle(strings.Repeat("b", 50)))
}

func TestListAllOrdersByActivityWithStableTies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	clock := base
	s.now = func() time.Time { return clock }

	s.CreateConversation(ctx, "a")
	clock = base.Add(time.Second)
	s.CreateConversation(ctx, "b")
	clock = base.Add(2 * time.Second)
	s.CreateConversation(ctx, "c")

	// Touch "b" last so it jumps ahead of the newer "c".
	clock = base.Add(time.Minute)
	s.UpdateMessages(ctx, "b", []Message{{ID: 1, Role: RoleUser, Content: "newest"}})

	list := s.ListAll()
	require.Len(t, list, 3)
	require.Equal(t, []string{"b", "c", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestListAllBreaksTiesByInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	clock := time.Now()
	s.now = func() time.Time { return clock }

	s.CreateConversation(ctx, "first")
	s.CreateConversation(ctx, "second")
	s.CreateConversation(ctx, "third")

	list := s.ListAll()
	require.Equal(t, []string{"first", "second", "third"},
		[]string{list[0].ID, list[1].ID, list[2].ID})
}

func TestPersistedDocumentRoundTrips(t *testing.T) {
	driver := &memoryDriver{}
	s := New(driver)
	ctx := context.Background()
	require.NoError(t, s.Hydrate(ctx))

	s.CreateConversation(ctx, "conv-1")
	s.UpdateMessages(ctx, "conv-1", []Message{
		{ID: 1, Role: RoleUser, Content: "lap times please", Timestamp: "14:02"},
		{ID: 2, Role: RoleAssistant, Content: "Here is the telemetry.", Timestamp: "14:02", HasAction: true},
	})
	s.UpdateViewState(ctx, "conv-1", []byte(`{"panel":"lap","year":2024}`))

	reloaded := New(driver)
	require.NoError(t, reloaded.Hydrate(ctx))

	conv, ok := reloaded.Get("conv-1")
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	require.True(t, conv.Messages[1].HasAction)
	require.JSONEq(t, `{"panel":"lap","year":2024}`, string(conv.ViewState))
}

func TestHydrateDiscardsCorruptData(t *testing.T) {
	driver := &memoryDriver{value: "{not json", ok: true}
	s := New(driver)
	require.NoError(t, s.Hydrate(context.Background()))
	require.Empty(t, s.ListAll())

	// The store still persists fresh data afterwards.
	s.CreateConversation(context.Background(), "conv-1")
	require.Greater(t, driver.saveCount(), 0)
}

func TestNoPersistBeforeHydrate(t *testing.T) {
	driver := &memoryDriver{}
	s := New(driver)

	s.CreateConversation(context.Background(), "early")
	require.Equal(t, 0, driver.saveCount(), "writes before hydration would clobber the slot")
}

func TestRemoveClearsCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "conv-1")
	require.Equal(t, "conv-1", s.CurrentID())

	s.Remove(ctx, "conv-1")
	require.Empty(t, s.CurrentID())
	_, ok := s.Get("conv-1")
	require.False(t, ok)

	// Removing again is harmless.
	s.Remove(ctx, "conv-1")
}

func TestSubscribeFiresOnMutation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	fired := 0
	unsubscribe := s.Subscribe(func() { fired++ })

	s.CreateConversation(ctx, "conv-1")
	require.Equal(t, 1, fired)

	unsubscribe()
	s.UpdateTitle(ctx, "conv-1", "Quali review")
	require.Equal(t, 1, fired)
}
