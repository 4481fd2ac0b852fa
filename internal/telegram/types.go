package telegram

import (
	"context"

	"itslive-telegram-bot/internal/pending"
	"itslive-telegram-bot/internal/tokeninfo"
	"itslive-telegram-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// Bot telegram interaction client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig

	api      botAPI
	store    Store
	pending  PendingStore
	tokens   TokenResolver
	recorder Recorder
}

// Deps are the services the command handlers work with.
type Deps struct {
	Store    Store
	Pending  PendingStore
	Tokens   TokenResolver
	Recorder Recorder
}

// botAPI is the part of the Bot API client the bot calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Store is the persistence used by commands.
type Store interface {
	InsertSubscription(ctx context.Context, chatID, token string) (bool, error)
	DeleteSubscription(ctx context.Context, chatID, token string) (bool, error)
	FindTokensByChat(ctx context.Context, chatID string) ([]types.Subscription, error)
	InsertAlert(ctx context.Context, a types.MarketCapAlert) (bool, error)
	DeleteAlert(ctx context.Context, chatID, token string) (bool, error)
	ReplaceAlert(ctx context.Context, a types.MarketCapAlert) (bool, error)
	FindAlertsByChat(ctx context.Context, chatID string) ([]types.MarketCapAlert, error)
	FindAlert(ctx context.Context, chatID, token string) (types.MarketCapAlert, bool, error)
}

// PendingStore keeps alert wizards between button presses.
type PendingStore interface {
	Put(ctx context.Context, chatID string, a pending.Alert) error
	Get(ctx context.Context, chatID string) (pending.Alert, bool, error)
	Delete(ctx context.Context, chatID string) error
}

// TokenResolver names tokens for display.
type TokenResolver interface {
	Resolve(ctx context.Context, mint string) (tokeninfo.Info, bool)
	Display(ctx context.Context, mint string) string
}

// Recorder counts handled commands.
type Recorder interface {
	CommandProcessed()
}
