package telegram

import (
	"context"
	"strconv"
	"strings"

	"itslive-telegram-bot/internal/notify"
	"itslive-telegram-bot/internal/render"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNotModified is wrapped by edits that would leave a message unchanged.
var ErrNotModified = notify.ErrNotModified

// NewBot creates new telegram bot
func NewBot(c BotConfig, deps Deps) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Debugf("Authorized on account %s", bot.Self.UserName)

	b := newBot(bot, deps)
	b.Bot = bot
	b.Config = c
	return b, nil
}

func newBot(api botAPI, deps Deps) *Bot {
	return &Bot{
		api:      api,
		store:    deps.Store,
		pending:  deps.Pending,
		tokens:   deps.Tokens,
		recorder: deps.Recorder,
	}
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	updatesConfig.AllowedUpdates = []string{"message", "callback_query"}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// StopReceivingUpdates stops the long polling started by GetUpdatesChannel.
func (b *Bot) StopReceivingUpdates() {
	b.Bot.StopReceivingUpdates()
}

// IsNotModified reports whether err is Telegram refusing an edit that changes
// nothing.
func IsNotModified(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotModified) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsNotModified(err) {
		return errors.Wrap(ErrNotModified, err.Error())
	}
	return err
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	return id, errors.Wrapf(err, "invalid chat id %q", chatID)
}

func formatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func linkMarkup(button *render.LinkButton) *tgbotapi.InlineKeyboardMarkup {
	if button == nil {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(button.Text, button.URL)),
	)
	return &markup
}

// SendMessage sends text to chatID with an optional link button and returns the
// new message id.
func (b *Bot) SendMessage(_ context.Context, chatID, text string, button *render.LinkButton) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = true
	if markup := linkMarkup(button); markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, errors.Wrapf(err, "could not send message to chat %s", chatID)
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of a message. Unchanged edits fail with an
// error wrapping ErrNotModified.
func (b *Bot) EditMessageText(_ context.Context, chatID string, messageID int, text string, button *render.LinkButton) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(id, messageID, text)
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = linkMarkup(button)

	_, err = b.api.Request(edit)
	return classify(err)
}

func (b *Bot) PinChatMessage(_ context.Context, chatID string, messageID int, disableNotification bool) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	_, err = b.api.Request(tgbotapi.PinChatMessageConfig{
		ChatID:              id,
		MessageID:           messageID,
		DisableNotification: disableNotification,
	})
	return errors.Wrapf(err, "could not pin message %d in chat %s", messageID, chatID)
}

func (b *Bot) UnpinChatMessage(_ context.Context, chatID string, messageID int) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	_, err = b.api.Request(tgbotapi.UnpinChatMessageConfig{
		ChatID:    id,
		MessageID: messageID,
	})
	return errors.Wrapf(err, "could not unpin message %d in chat %s", messageID, chatID)
}

// reply sends a plain text message and logs failures.
func (b *Bot) reply(chatID int64, text string, markup interface{}) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		log.WithField("chat_id", chatID).WithError(err).Error("Failed to send message")
	}
	return sent, err
}

// editInline rewrites a bot message and its inline keyboard. Unchanged content
// is not an error.
func (b *Bot) editInline(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup
	if _, err := b.api.Request(edit); err != nil && !IsNotModified(err) {
		log.WithFields(log.Fields{"chat_id": chatID, "message_id": messageID}).WithError(err).Error("Failed to edit message")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.WithError(err).Debug("Failed to answer callback query")
	}
}
