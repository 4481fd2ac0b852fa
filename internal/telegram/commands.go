package telegram

import (
	"context"
	"strings"

	"itslive-telegram-bot/internal/pending"
	"itslive-telegram-bot/lib/helpers"
	"itslive-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	if u.CallbackQuery != nil {
		b.HandleCallbackQuery(ctx, u.CallbackQuery)
		return
	}
	if u.Message == nil || !u.Message.IsCommand() {
		log.Debug("Received non-message or non-command")
		return
	}

	msg := u.Message
	log.Debugf("received command: %s", msg.Command())

	switch strings.ToLower(msg.Command()) {
	case "setup":
		b.handleSetup(ctx, msg)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, msg)
	case "ca":
		b.handleCa(ctx, msg)
	case "notify":
		b.handleNotify(ctx, msg)
	case "alerts":
		b.handleAlerts(ctx, msg)
	case "help", "start":
		b.reply(msg.Chat.ID, helpText(), nil)
	default:
		return
	}

	if b.recorder != nil {
		b.recorder.CommandProcessed()
	}
}

func helpText() string {
	return translation.Translate("$ITSLIVE Livestream Bot commands:\n" +
		"/setup <tokenAddress> - Subscribe to a token\n" +
		"/unsubscribe <tokenAddress> - Stop notifications for a token\n" +
		"/ca - Send the contract address\n" +
		"/notify <tokenAddress> - Set market cap alerts\n" +
		"/alerts - Show your market cap alerts\n" +
		"/help - Show this message")
}

// firstArgument returns the first whitespace separated command argument.
func firstArgument(msg *tgbotapi.Message) string {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

// isAdmin reports whether userID administers chatID. Lookup failures deny.
func (b *Bot) isAdmin(chatID, userID int64) bool {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "user_id": userID}).WithError(err).Warn("Failed to check chat member")
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func (b *Bot) handleSetup(ctx context.Context, msg *tgbotapi.Message) {
	chatID := formatChatID(msg.Chat.ID)
	mint := helpers.NormalizeMint(firstArgument(msg))
	if !helpers.IsValidMint(mint) {
		b.reply(msg.Chat.ID, translation.Translate("Please provide a valid Solana token address."), nil)
		return
	}

	inserted, err := b.store.InsertSubscription(ctx, chatID, mint)
	if err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "token": mint}).WithError(err).Error("Failed to save subscription")
		b.reply(msg.Chat.ID, translation.Translate("Could not subscribe right now. Please try again later."), nil)
		return
	}
	if !inserted {
		b.reply(msg.Chat.ID, translation.Translate("You are already subscribed to this token."), nil)
		return
	}

	name := mint
	if info, ok := b.tokens.Resolve(ctx, mint); ok && info.Name != "" {
		name = info.Name
	}
	b.reply(msg.Chat.ID, translation.Translate("Subscribed! You will be notified when %s goes live or offline.", name), nil)
}

func (b *Bot) handleUnsubscribe(ctx context.Context, msg *tgbotapi.Message) {
	chatID := formatChatID(msg.Chat.ID)
	mint := helpers.NormalizeMint(firstArgument(msg))
	if !helpers.IsValidMint(mint) {
		b.reply(msg.Chat.ID, translation.Translate("Please provide a valid Solana token address."), nil)
		return
	}

	deleted, err := b.store.DeleteSubscription(ctx, chatID, mint)
	if err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "token": mint}).WithError(err).Error("Failed to delete subscription")
		b.reply(msg.Chat.ID, translation.Translate("Could not unsubscribe right now. Please try again later."), nil)
		return
	}
	if !deleted {
		b.reply(msg.Chat.ID, translation.Translate("You are not subscribed to this token."), nil)
		return
	}
	b.reply(msg.Chat.ID, translation.Translate("Unsubscribed from %s.", b.tokens.Display(ctx, mint)), nil)
}

func (b *Bot) handleCa(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		b.reply(msg.Chat.ID, translation.Translate("This command only works in groups."), nil)
		return
	}

	tokens, err := b.store.FindTokensByChat(ctx, formatChatID(msg.Chat.ID))
	if err != nil {
		log.WithField("chat_id", msg.Chat.ID).WithError(err).Error("Failed to load chat tokens")
		return
	}
	if len(tokens) == 0 {
		b.reply(msg.Chat.ID, translation.Translate("No token setup for this group. Use /setup <token_address> to set one."), nil)
		return
	}
	b.reply(msg.Chat.ID, tokens[0].TokenAddress, nil)
}

// handleNotify posts the alert menu in groups and starts the alert wizard in
// private chats.
func (b *Bot) handleNotify(ctx context.Context, msg *tgbotapi.Message) {
	mint := helpers.NormalizeMint(firstArgument(msg))
	if mint == "" {
		b.reply(msg.Chat.ID, translation.Translate("Please provide a token address."), nil)
		return
	}
	if !helpers.IsValidMint(mint) {
		b.reply(msg.Chat.ID, translation.Translate("Please provide a valid Solana token address."), nil)
		return
	}

	if !msg.Chat.IsPrivate() {
		if msg.From == nil || !b.isAdmin(msg.Chat.ID, msg.From.ID) {
			b.reply(msg.Chat.ID, translation.Translate("Only group admins can configure alerts."), nil)
			return
		}
		b.reply(msg.Chat.ID, menuText(mint), marketCapMenu())
		return
	}

	p := pending.Defaults(mint)
	sent, err := b.reply(msg.Chat.ID, wizardText(b.tokens.Display(ctx, mint), p), wizardKeyboard(p))
	if err != nil {
		return
	}
	p.MessageID = sent.MessageID

	if err := b.pending.Put(ctx, formatChatID(msg.Chat.ID), p); err != nil {
		log.WithField("chat_id", msg.Chat.ID).WithError(err).Error("Failed to save pending alert")
	}
}

func (b *Bot) handleAlerts(ctx context.Context, msg *tgbotapi.Message) {
	alerts, err := b.store.FindAlertsByChat(ctx, formatChatID(msg.Chat.ID))
	if err != nil {
		log.WithField("chat_id", msg.Chat.ID).WithError(err).Error("Failed to load alerts")
		b.reply(msg.Chat.ID, translation.Translate("Could not load your alerts. Please try again later."), nil)
		return
	}
	if len(alerts) == 0 {
		b.reply(msg.Chat.ID, translation.Translate("You have no market cap alerts. Use /notify <token_address> to add one."), nil)
		return
	}
	b.reply(msg.Chat.ID, translation.Translate("Your market cap alerts:"), alertsKeyboard(alerts))
}
