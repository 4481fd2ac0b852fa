package telegram

import (
	"context"

	"itslive-telegram-bot/internal/types"
	"itslive-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

func (b *Bot) HandleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		b.answer(q.ID, "")
		return
	}

	prefix, args := callbackData(q.Data)
	switch prefix {
	case cbMarketCapAlert:
		b.handleMarketCapAlert(ctx, q, args)
	case cbNotifyDir:
		b.handleWizardDirection(ctx, q, args)
	case cbNotifySave:
		b.handleWizardSave(ctx, q)
	case cbNotifyCancel:
		b.handleWizardCancel(ctx, q)
	case cbNotifyView:
		b.handleAlertView(ctx, q, args)
	case cbNotifyEdit:
		b.handleAlertEdit(ctx, q, args)
	case cbNotifyDelete:
		b.handleAlertDelete(ctx, q, args)
	default:
		b.answer(q.ID, translation.Translate("Unknown action. Please try again."))
	}
}

// handleMarketCapAlert saves or deletes the alert of a group menu. The menu
// message is the one edited when the alert fires.
func (b *Bot) handleMarketCapAlert(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) {
	msg := q.Message
	chatID := formatChatID(msg.Chat.ID)

	token, ok := menuToken(msg.Text)
	if !ok || len(args) < 1 {
		b.answer(q.ID, translation.Translate("Invalid alert data."))
		return
	}
	if !msg.Chat.IsPrivate() && (q.From == nil || !b.isAdmin(msg.Chat.ID, q.From.ID)) {
		b.answer(q.ID, translation.Translate("Only group admins can configure alerts."))
		return
	}
	logger := log.WithFields(log.Fields{"chat_id": chatID, "token": token})

	if args[0] == alertKindDelete {
		deleted, err := b.store.DeleteAlert(ctx, chatID, token)
		if err != nil {
			logger.WithError(err).Error("Failed to delete alert")
			b.answer(q.ID, translation.Translate("Failed to save alert. Please try again later."))
			return
		}
		if !deleted {
			b.answer(q.ID, translation.Translate("No market cap alert set for %s.", token))
			return
		}
		b.answer(q.ID, translation.Translate("Market cap alert deleted for %s.", token))
		return
	}

	a, ok := menuAlert(args)
	if !ok {
		b.answer(q.ID, translation.Translate("Invalid alert data."))
		return
	}
	a.ChatID = chatID
	a.TokenAddress = token
	a.MessageID = msg.MessageID

	inserted, err := b.store.InsertAlert(ctx, a)
	if err != nil {
		logger.WithError(err).Error("Failed to save alert")
		b.answer(q.ID, translation.Translate("Failed to save alert. Please try again later."))
		return
	}
	if !inserted {
		b.answer(q.ID, translation.Translate("You already have a market cap alert set for %s.", token))
		return
	}
	b.answer(q.ID, translation.Translate("Market cap alert set for %s!", token))
}

func (b *Bot) handleWizardDirection(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) {
	chatID := formatChatID(q.Message.Chat.ID)
	p, ok, err := b.pending.Get(ctx, chatID)
	if err != nil || !ok {
		if err != nil {
			log.WithField("chat_id", chatID).WithError(err).Error("Failed to load pending alert")
		}
		b.answer(q.ID, translation.Translate("This alert setup has expired. Use /notify <token_address> to start again."))
		return
	}

	direction := types.Direction("")
	if len(args) > 0 {
		direction = types.Direction(args[0])
	}
	if !direction.Valid() {
		b.answer(q.ID, translation.Translate("Invalid alert data."))
		return
	}

	p.Direction = direction
	if err := b.pending.Put(ctx, chatID, p); err != nil {
		log.WithField("chat_id", chatID).WithError(err).Error("Failed to save pending alert")
	}
	b.editInline(q.Message.Chat.ID, q.Message.MessageID, wizardText(b.tokens.Display(ctx, p.Token), p), ptr(wizardKeyboard(p)))
	b.answer(q.ID, "")
}

func (b *Bot) handleWizardSave(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := formatChatID(q.Message.Chat.ID)
	p, ok, err := b.pending.Get(ctx, chatID)
	if err != nil || !ok {
		if err != nil {
			log.WithField("chat_id", chatID).WithError(err).Error("Failed to load pending alert")
		}
		b.answer(q.ID, translation.Translate("This alert setup has expired. Use /notify <token_address> to start again."))
		return
	}

	messageID := p.MessageID
	if messageID == 0 {
		messageID = q.Message.MessageID
	}
	a := types.MarketCapAlert{
		ChatID:           chatID,
		TokenAddress:     p.Token,
		MessageID:        messageID,
		Kind:             types.KindThreshold,
		ThresholdPercent: p.Threshold,
		Direction:        p.Direction,
	}

	inserted, err := b.store.InsertAlert(ctx, a)
	if err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "token": p.Token}).WithError(err).Error("Failed to save alert")
		b.answer(q.ID, translation.Translate("Failed to save alert. Please try again later."))
		return
	}
	if err := b.pending.Delete(ctx, chatID); err != nil {
		log.WithField("chat_id", chatID).WithError(err).Warn("Failed to clear pending alert")
	}

	display := b.tokens.Display(ctx, p.Token)
	if !inserted {
		b.answer(q.ID, translation.Translate("You already have a market cap alert set for %s.", p.Token))
		b.editInline(q.Message.Chat.ID, q.Message.MessageID,
			translation.Translate("You already have a market cap alert set for %s. Use /alerts to change it.", display), nil)
		return
	}

	b.editInline(q.Message.Chat.ID, q.Message.MessageID,
		translation.Translate("✅ Alert saved: %s market cap %s. This message will update when it fires.", display, alertSummary(a)), nil)
	b.answer(q.ID, translation.Translate("Market cap alert set for %s!", p.Token))
}

func (b *Bot) handleWizardCancel(ctx context.Context, q *tgbotapi.CallbackQuery) {
	chatID := formatChatID(q.Message.Chat.ID)
	if err := b.pending.Delete(ctx, chatID); err != nil {
		log.WithField("chat_id", chatID).WithError(err).Warn("Failed to clear pending alert")
	}
	b.editInline(q.Message.Chat.ID, q.Message.MessageID, translation.Translate("Alert setup cancelled."), nil)
	b.answer(q.ID, "")
}

// loadAlert finds the chat's alert named by the first callback argument,
// answering the query when there is none.
func (b *Bot) loadAlert(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) (types.MarketCapAlert, bool) {
	chatID := formatChatID(q.Message.Chat.ID)
	if len(args) < 1 || args[0] == "" {
		b.answer(q.ID, translation.Translate("Invalid alert data."))
		return types.MarketCapAlert{}, false
	}

	a, ok, err := b.store.FindAlert(ctx, chatID, args[0])
	if err != nil {
		log.WithFields(log.Fields{"chat_id": chatID, "token": args[0]}).WithError(err).Error("Failed to load alert")
		b.answer(q.ID, translation.Translate("Could not load your alerts. Please try again later."))
		return types.MarketCapAlert{}, false
	}
	if !ok {
		b.answer(q.ID, translation.Translate("No market cap alert set for %s.", args[0]))
		return types.MarketCapAlert{}, false
	}
	return a, true
}

func (b *Bot) handleAlertView(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) {
	a, ok := b.loadAlert(ctx, q, args)
	if !ok {
		return
	}
	b.editInline(q.Message.Chat.ID, q.Message.MessageID, alertViewText(b.tokens.Display(ctx, a.TokenAddress), a), ptr(alertViewKeyboard(a)))
	b.answer(q.ID, "")
}

// handleAlertEdit switches the alert's direction by recreating it.
func (b *Bot) handleAlertEdit(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) {
	a, ok := b.loadAlert(ctx, q, args)
	if !ok {
		return
	}

	direction := types.Direction("")
	if len(args) > 1 {
		direction = types.Direction(args[1])
	}
	if !direction.Valid() {
		b.answer(q.ID, translation.Translate("Invalid alert data."))
		return
	}

	a.Direction = direction
	if _, err := b.store.ReplaceAlert(ctx, a); err != nil {
		log.WithFields(log.Fields{"chat_id": a.ChatID, "token": a.TokenAddress}).WithError(err).Error("Failed to update alert")
		b.answer(q.ID, translation.Translate("Failed to save alert. Please try again later."))
		return
	}

	b.editInline(q.Message.Chat.ID, q.Message.MessageID, alertViewText(b.tokens.Display(ctx, a.TokenAddress), a), ptr(alertViewKeyboard(a)))
	b.answer(q.ID, translation.Translate("Alert updated."))
}

func (b *Bot) handleAlertDelete(ctx context.Context, q *tgbotapi.CallbackQuery, args []string) {
	a, ok := b.loadAlert(ctx, q, args)
	if !ok {
		return
	}

	if _, err := b.store.DeleteAlert(ctx, a.ChatID, a.TokenAddress); err != nil {
		log.WithFields(log.Fields{"chat_id": a.ChatID, "token": a.TokenAddress}).WithError(err).Error("Failed to delete alert")
		b.answer(q.ID, translation.Translate("Failed to save alert. Please try again later."))
		return
	}

	b.editInline(q.Message.Chat.ID, q.Message.MessageID,
		translation.Translate("Alert deleted for %s.", b.tokens.Display(ctx, a.TokenAddress)), nil)
	b.answer(q.ID, translation.Translate("Alert deleted."))
}

func ptr[T any](v T) *T {
	return &v
}
