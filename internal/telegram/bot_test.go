package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"

	"itslive-telegram-bot/internal/database"
	"itslive-telegram-bot/internal/notify"
	"itslive-telegram-bot/internal/pending"
	"itslive-telegram-bot/internal/render"
	"itslive-telegram-bot/internal/tokeninfo"
	"itslive-telegram-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type sent struct {
	ChatID int64
	Text   string
	Markup interface{}
}

type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	sent      []sent
	requests  []tgbotapi.Chattable
	requestFn func(c tgbotapi.Chattable) error
	members   map[int64]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 1000, members: make(map[int64]string)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.Errorf("unexpected send %T", c)
	}
	f.nextID++
	f.sent = append(f.sent, sent{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
	return tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: msg.ChatID}}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.requestFn != nil {
		if err := f.requestFn(c); err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.members[config.UserID]
	if !ok {
		return tgbotapi.ChatMember{}, errors.New("Bad Request: user not found")
	}
	return tgbotapi.ChatMember{Status: status}, nil
}

func (f *fakeAPI) lastSent(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) answers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if cb, ok := r.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func (f *fakeAPI) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, r := range f.requests {
		if e, ok := r.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e)
		}
	}
	return out
}

type fakeTokens struct{}

func (fakeTokens) Resolve(context.Context, string) (tokeninfo.Info, bool) {
	return tokeninfo.Info{Name: "USD Coin", Symbol: "USDC"}, true
}

func (fakeTokens) Display(context.Context, string) string {
	return "USD Coin (USDC)"
}

type commandCounter struct{ n int }

func (c *commandCounter) CommandProcessed() { c.n++ }

type fixture struct {
	api      *fakeAPI
	store    *database.Store
	pending  *pending.Store
	recorder *commandCounter
	bot      *Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pendingStore, err := pending.Open(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { pendingStore.Close() })

	api := newFakeAPI()
	recorder := &commandCounter{}
	return &fixture{
		api:      api,
		store:    store,
		pending:  pendingStore,
		recorder: recorder,
		bot: newBot(api, Deps{
			Store:    store,
			Pending:  pendingStore,
			Tokens:   fakeTokens{},
			Recorder: recorder,
		}),
	}
}

func command(chat *tgbotapi.Chat, from int64, text string) tgbotapi.Update {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		length = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from},
		Chat:      chat,
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func callback(chat *tgbotapi.Chat, from int64, messageID int, text, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: chat, Text: text},
		Data:    data,
	}}
}

var (
	privateChat = &tgbotapi.Chat{ID: 42, Type: "private"}
	groupChat   = &tgbotapi.Chat{ID: -100, Type: "supergroup"}
)

func TestSetup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(groupChat, 1, "/setup nope"))
	assert.Equal(t, "Please provide a valid Solana token address.", f.api.lastSent(t).Text)

	f.bot.HandleUpdate(ctx, command(groupChat, 1, "/setup "+usdc))
	assert.Equal(t, "Subscribed! You will be notified when USD Coin goes live or offline.", f.api.lastSent(t).Text)

	f.bot.HandleUpdate(ctx, command(groupChat, 1, "/setup "+usdc))
	assert.Equal(t, "You are already subscribed to this token.", f.api.lastSent(t).Text)

	chats, err := f.store.FindSubscriberChats(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, []string{"-100"}, chats)
	assert.Equal(t, 3, f.recorder.n)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.InsertSubscription(ctx, "42", usdc)
	require.NoError(t, err)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/unsubscribe "+usdc))
	assert.Equal(t, "Unsubscribed from USD Coin (USDC).", f.api.lastSent(t).Text)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/unsubscribe "+usdc))
	assert.Equal(t, "You are not subscribed to this token.", f.api.lastSent(t).Text)
}

func TestCa(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/ca"))
	assert.Equal(t, "This command only works in groups.", f.api.lastSent(t).Text)

	f.bot.HandleUpdate(ctx, command(groupChat, 1, "/ca"))
	assert.Contains(t, f.api.lastSent(t).Text, "No token setup for this group.")

	_, err := f.store.InsertSubscription(ctx, "-100", usdc)
	require.NoError(t, err)
	f.bot.HandleUpdate(ctx, command(groupChat, 1, "/ca@itslive_bot"))
	assert.Equal(t, usdc, f.api.lastSent(t).Text)
}

func TestHelpAndUnknownCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/help"))
	assert.Contains(t, f.api.lastSent(t).Text, "/setup <tokenAddress> - Subscribe to a token")

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/price btc"))
	assert.Len(t, f.api.sent, 1)
	assert.Equal(t, 1, f.recorder.n)
}

func TestGroupNotifyMenu(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.api.members[7] = "administrator"
	f.api.members[8] = "member"

	f.bot.HandleUpdate(ctx, command(groupChat, 8, "/notify "+usdc))
	assert.Equal(t, "Only group admins can configure alerts.", f.api.lastSent(t).Text)

	f.bot.HandleUpdate(ctx, command(groupChat, 7, "/notify "+usdc))
	menu := f.api.lastSent(t)
	assert.Equal(t, "Set market cap alerts for token: "+usdc, menu.Text)
	markup, ok := menu.Markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 3)
	assert.Equal(t, "mc_alert|threshold|10|up", *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "mc_alert|threshold|10|down", *markup.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "Alert me when market cap increases by 10%", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Alert me when market cap decreases by 10%", markup.InlineKeyboard[1][0].Text)

	menuID := 555
	f.bot.HandleUpdate(ctx, callback(groupChat, 7, menuID, menu.Text, "mc_alert|threshold|10|up"))
	f.bot.HandleUpdate(ctx, callback(groupChat, 7, menuID, menu.Text, "mc_alert|threshold|10|down"))
	f.bot.HandleUpdate(ctx, callback(groupChat, 8, menuID, menu.Text, "mc_alert|threshold|10|down"))

	assert.Equal(t, []string{
		"Market cap alert set for " + usdc + "!",
		"You already have a market cap alert set for " + usdc + ".",
		"Only group admins can configure alerts.",
	}, f.api.answers())

	a, ok, err := f.store.FindAlert(ctx, "-100", usdc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, menuID, a.MessageID)
	assert.Equal(t, types.KindThreshold, a.Kind)
	assert.Equal(t, 10.0, a.ThresholdPercent)
	assert.Equal(t, types.DirectionUp, a.Direction)

	f.bot.HandleUpdate(ctx, callback(groupChat, 7, menuID, menu.Text, "mc_alert|delete|0|none"))
	_, ok, err = f.store.FindAlert(ctx, "-100", usdc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrivateWizard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/notify "+usdc))
	wizard := f.api.lastSent(t)
	assert.Contains(t, wizard.Text, "Configure a market cap alert for USD Coin (USDC)")
	assert.Contains(t, wizard.Text, "Threshold: 10%")

	p, ok, err := f.pending.Get(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.DirectionUp, p.Direction)
	wizardID := p.MessageID
	require.NotZero(t, wizardID)

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, wizardID, wizard.Text, "notify_dir|down"))
	p, _, err = f.pending.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, types.DirectionDown, p.Direction)

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, wizardID, wizard.Text, "notify_save"))
	a, ok, err := f.store.FindAlert(ctx, "42", usdc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, wizardID, a.MessageID)
	assert.Equal(t, types.DirectionDown, a.Direction)

	_, ok, err = f.pending.Get(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	edits := f.api.edits()
	require.Len(t, edits, 2)
	assert.Contains(t, edits[1].Text, "Alert saved")

	// A finished wizard cannot be saved again.
	f.bot.HandleUpdate(ctx, callback(privateChat, 42, wizardID, wizard.Text, "notify_save"))
	answers := f.api.answers()
	assert.Contains(t, answers[len(answers)-1], "expired")
}

func TestWizardCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/notify "+usdc))
	f.bot.HandleUpdate(ctx, callback(privateChat, 42, 1001, "", "notify_cancel"))

	_, ok, err := f.pending.Get(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Alert setup cancelled.", f.api.edits()[0].Text)
}

func TestAlertsViewEditDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/alerts"))
	assert.Contains(t, f.api.lastSent(t).Text, "You have no market cap alerts.")

	_, err := f.store.InsertAlert(ctx, types.MarketCapAlert{
		ChatID: "42", TokenAddress: usdc, MessageID: 9,
		Kind: types.KindThreshold, ThresholdPercent: 10, Direction: types.DirectionUp,
	})
	require.NoError(t, err)

	f.bot.HandleUpdate(ctx, command(privateChat, 42, "/alerts"))
	list := f.api.lastSent(t)
	markup, ok := list.Markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "notify_view|"+usdc, *markup.InlineKeyboard[0][0].CallbackData)

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, 77, list.Text, "notify_view|"+usdc))
	require.Len(t, f.api.edits(), 1)
	assert.Contains(t, f.api.edits()[0].Text, "Market cap alert for USD Coin (USDC)")

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, 77, list.Text, "notify_edit|"+usdc+"|down"))
	a, ok, err := f.store.FindAlert(ctx, "42", usdc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.DirectionDown, a.Direction)
	assert.Equal(t, 9, a.MessageID)

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, 77, list.Text, "notify_delete|"+usdc))
	_, ok, err = f.store.FindAlert(ctx, "42", usdc)
	require.NoError(t, err)
	assert.False(t, ok)

	f.bot.HandleUpdate(ctx, callback(privateChat, 42, 77, list.Text, "notify_view|"+usdc))
	answers := f.api.answers()
	assert.Equal(t, "No market cap alert set for "+usdc+".", answers[len(answers)-1])
}

func TestMessenger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	button := render.PumpFunButton(usdc)
	id, err := f.bot.SendMessage(ctx, "-100", "hello", &button)
	require.NoError(t, err)
	assert.Equal(t, 1001, id)
	markup, ok := f.api.lastSent(t).Markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "https://pump.fun/coin/"+usdc, *markup.InlineKeyboard[0][0].URL)

	_, err = f.bot.SendMessage(ctx, "not-a-chat", "hello", nil)
	assert.Error(t, err)

	f.api.requestFn = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			return &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}
		}
		return nil
	}
	err = f.bot.EditMessageText(ctx, "-100", 5, "same", &button)
	assert.True(t, errors.Is(err, notify.ErrNotModified))
	assert.True(t, IsNotModified(err))

	require.NoError(t, f.bot.PinChatMessage(ctx, "-100", 5, true))
	require.NoError(t, f.bot.UnpinChatMessage(ctx, "-100", 5))

	f.api.mu.Lock()
	pin, ok := f.api.requests[len(f.api.requests)-2].(tgbotapi.PinChatMessageConfig)
	f.api.mu.Unlock()
	require.True(t, ok)
	assert.True(t, pin.DisableNotification)
	assert.Equal(t, int64(-100), pin.ChatID)
}

func TestIsNotModified(t *testing.T) {
	assert.False(t, IsNotModified(nil))
	assert.False(t, IsNotModified(errors.New("Forbidden: bot was blocked by the user")))
	assert.True(t, IsNotModified(errors.New("Bad Request: message is not modified")))
	assert.True(t, IsNotModified(errors.Wrap(ErrNotModified, "edit")))
}

func TestMenuHelpers(t *testing.T) {
	token, ok := menuToken("Set market cap alerts for token: " + usdc)
	require.True(t, ok)
	assert.Equal(t, usdc, token)
	_, ok = menuToken("hello")
	assert.False(t, ok)

	a, ok := menuAlert([]string{"amount", "50000", "down"})
	require.True(t, ok)
	assert.Equal(t, types.KindAmount, a.Kind)
	assert.Equal(t, 50000.0, a.AmountUSD)

	_, ok = menuAlert([]string{"threshold", "10", "sideways"})
	assert.False(t, ok)
	_, ok = menuAlert([]string{"bogus", "10", "up"})
	assert.False(t, ok)
	_, ok = menuAlert([]string{"threshold", "x", "up"})
	assert.False(t, ok)

	prefix, args := callbackData("notify_edit|abc|down")
	assert.Equal(t, "notify_edit", prefix)
	assert.Equal(t, []string{"abc", "down"}, args)
}
