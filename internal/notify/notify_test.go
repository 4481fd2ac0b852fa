package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"itslive-telegram-bot/internal/alert"
	"itslive-telegram-bot/internal/render"
	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	ChatID string
	Text   string
	Button *render.LinkButton
}

type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	sent     []sentMessage
	edits    []alert.EditIntent
	pins     map[string]int
	unpins   []string
	failSend map[string]bool
	failPin  map[string]bool
	failEdit map[string]error
	failUnpn map[string]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextID:   100,
		pins:     make(map[string]int),
		failSend: make(map[string]bool),
		failPin:  make(map[string]bool),
		failEdit: make(map[string]error),
		failUnpn: make(map[string]bool),
	}
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID, text string, button *render.LinkButton) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend[chatID] {
		return 0, fmt.Errorf("Forbidden: bot was kicked from chat %s", chatID)
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Button: button})
	return m.nextID, nil
}

func (m *fakeMessenger) EditMessageText(_ context.Context, chatID string, messageID int, text string, button *render.LinkButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failEdit[chatID]; err != nil {
		return err
	}
	m.edits = append(m.edits, alert.EditIntent{ChatID: chatID, MessageID: messageID, Text: text, Button: *button})
	return nil
}

func (m *fakeMessenger) PinChatMessage(_ context.Context, chatID string, messageID int, disableNotification bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPin[chatID] {
		return errors.New("not enough rights to pin a message")
	}
	if !disableNotification {
		return errors.New("pins must be silent")
	}
	m.pins[chatID] = messageID
	return nil
}

func (m *fakeMessenger) UnpinChatMessage(_ context.Context, chatID string, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUnpn[chatID] {
		return errors.New("message to unpin not found")
	}
	m.unpins = append(m.unpins, fmt.Sprintf("%s:%d", chatID, messageID))
	return nil
}

func (m *fakeMessenger) sentChats() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chats []string
	for _, s := range m.sent {
		chats = append(chats, s.ChatID)
	}
	sort.Strings(chats)
	return chats
}

type fakeStore struct {
	mu      sync.Mutex
	pinned  map[string]types.PinnedMessage
	findErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{pinned: make(map[string]types.PinnedMessage)}
}

func (s *fakeStore) UpsertPinnedMessage(_ context.Context, chatID, token string, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[chatID+"|"+token] = types.PinnedMessage{ChatID: chatID, TokenAddress: token, MessageID: messageID}
	return nil
}

func (s *fakeStore) FindPinnedMessages(_ context.Context, token string) ([]types.PinnedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []types.PinnedMessage
	for _, p := range s.pinned {
		if p.TokenAddress == token {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) DeletePinnedMessage(_ context.Context, chatID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pinned, chatID+"|"+token)
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) Notification(kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[kind+"/"+result]++
}

func TestBroadcast_OneFailureDoesNotBlockOthers(t *testing.T) {
	messenger := newFakeMessenger()
	messenger.failSend["3"] = true
	recorder := &countingRecorder{}
	d := NewDispatcher(messenger, newFakeStore(), recorder, Config{})

	d.Broadcast(context.Background(), []string{"1", "2", "3", "4", "5"}, "🔴 Pepe went offline.", nil)

	assert.Equal(t, []string{"1", "2", "4", "5"}, messenger.sentChats())
	assert.Equal(t, 4, recorder.counts["broadcast/ok"])
	assert.Equal(t, 1, recorder.counts["broadcast/failed"])
}

func TestBroadcast_WithConcurrencyLimit(t *testing.T) {
	messenger := newFakeMessenger()
	d := NewDispatcher(messenger, newFakeStore(), nil, Config{MaxConcurrency: 2})

	chats := make([]string, 20)
	for i := range chats {
		chats[i] = fmt.Sprintf("%02d", i)
	}
	d.Broadcast(context.Background(), chats, "hi", nil)

	assert.Equal(t, chats, messenger.sentChats())
}

func TestAnnounceLive_PinsAndRemembers(t *testing.T) {
	messenger := newFakeMessenger()
	messenger.failSend["2"] = true
	messenger.failPin["3"] = true
	store := newFakeStore()
	d := NewDispatcher(messenger, store, nil, Config{})

	d.AnnounceLive(context.Background(), []string{"1", "2", "3"}, types.Stream{Mint: "T", Name: "Pepe"})

	assert.Equal(t, []string{"1", "3"}, messenger.sentChats(), "pin failure does not roll back the send")
	require.Contains(t, store.pinned, "1|T")
	assert.Equal(t, messenger.pins["1"], store.pinned["1|T"].MessageID)
	assert.NotContains(t, store.pinned, "3|T", "only successful pins are remembered")
	assert.NotContains(t, store.pinned, "2|T")

	for _, s := range messenger.sent {
		assert.Equal(t, "🟢 Pepe is LIVE! 🚀", s.Text)
		require.NotNil(t, s.Button)
		assert.Equal(t, "https://pump.fun/coin/T", s.Button.URL)
	}
}

func TestAnnounceOffline_DeletesRowsEvenWhenUnpinFails(t *testing.T) {
	messenger := newFakeMessenger()
	messenger.failUnpn["A"] = true
	store := newFakeStore()
	require.NoError(t, store.UpsertPinnedMessage(context.Background(), "A", "T", 10))
	require.NoError(t, store.UpsertPinnedMessage(context.Background(), "B", "T", 20))
	require.NoError(t, store.UpsertPinnedMessage(context.Background(), "A", "Other", 30))
	d := NewDispatcher(messenger, store, nil, Config{})

	err := d.AnnounceOffline(context.Background(), []string{"A", "B", "C"}, types.Stream{Mint: "T", Symbol: "PEPE"})
	require.NoError(t, err)

	assert.Equal(t, []string{"B:20"}, messenger.unpins)
	assert.NotContains(t, store.pinned, "A|T")
	assert.NotContains(t, store.pinned, "B|T")
	assert.Contains(t, store.pinned, "A|Other")

	assert.Equal(t, []string{"A", "B", "C"}, messenger.sentChats(), "offline goes to every subscriber")
	for _, s := range messenger.sent {
		assert.Equal(t, "🔴 PEPE went offline.", s.Text)
	}
}

func TestAnnounceOffline_StoreErrorIsReturned(t *testing.T) {
	messenger := newFakeMessenger()
	store := newFakeStore()
	store.findErr = errors.New("database is locked")
	d := NewDispatcher(messenger, store, nil, Config{})

	err := d.AnnounceOffline(context.Background(), []string{"A"}, types.Stream{Mint: "T"})
	require.Error(t, err)
	assert.Empty(t, messenger.sent)
}

func TestApplyEdits(t *testing.T) {
	messenger := newFakeMessenger()
	messenger.failEdit["2"] = errors.New("Bad Request: message to edit not found")
	messenger.failEdit["3"] = errors.Wrap(ErrNotModified, "edit")
	recorder := &countingRecorder{}
	d := NewDispatcher(messenger, newFakeStore(), recorder, Config{})

	button := render.PumpFunButton("T")
	d.ApplyEdits(context.Background(), []alert.EditIntent{
		{ChatID: "1", MessageID: 11, Token: "T", Text: "up", Button: button},
		{ChatID: "2", MessageID: 22, Token: "T", Text: "up", Button: button},
		{ChatID: "3", MessageID: 33, Token: "T", Text: "up", Button: button},
		{ChatID: "4", MessageID: 44, Token: "T", Text: "up", Button: button},
	})

	require.Len(t, messenger.edits, 2)
	assert.Equal(t, 2, recorder.counts["edit/ok"])
	assert.Equal(t, 1, recorder.counts["edit/failed"])
	assert.Equal(t, 1, recorder.counts["edit/unchanged"])
}
