// Package notify executes notification intents against the messaging platform.
// Every per-chat operation in a batch runs concurrently and fails on its own:
// failures are logged and abandoned, never retried and never returned.
package notify

import (
	"context"

	"itslive-telegram-bot/internal/alert"
	"itslive-telegram-bot/internal/render"
	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotModified is returned (wrapped) by a Messenger when an edit would leave the
// message unchanged.
var ErrNotModified = errors.New("message is not modified")

// Messenger is the messaging platform.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string, button *render.LinkButton) (messageID int, err error)
	EditMessageText(ctx context.Context, chatID string, messageID int, text string, button *render.LinkButton) error
	PinChatMessage(ctx context.Context, chatID string, messageID int, disableNotification bool) error
	UnpinChatMessage(ctx context.Context, chatID string, messageID int) error
}

// Store keeps the pinned live announcement of each (chat, token).
type Store interface {
	UpsertPinnedMessage(ctx context.Context, chatID, token string, messageID int) error
	FindPinnedMessages(ctx context.Context, token string) ([]types.PinnedMessage, error)
	DeletePinnedMessage(ctx context.Context, chatID, token string) error
}

// Recorder counts notification outcomes.
type Recorder interface {
	Notification(kind, result string)
}

const (
	KindBroadcast = "broadcast"
	KindLive      = "live"
	KindPin       = "pin"
	KindUnpin     = "unpin"
	KindEdit      = "edit"

	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultUnchanged = "unchanged"
)

type Config struct {
	// MaxConcurrency caps in-flight platform calls per batch, 0 means unlimited.
	MaxConcurrency int
}

type Dispatcher struct {
	messenger Messenger
	store     Store
	recorder  Recorder
	config    Config
}

func NewDispatcher(messenger Messenger, store Store, recorder Recorder, config Config) *Dispatcher {
	return &Dispatcher{
		messenger: messenger,
		store:     store,
		recorder:  recorder,
		config:    config,
	}
}

// fanOut runs op for every item concurrently and waits for all to settle.
func fanOut[T any](d *Dispatcher, ctx context.Context, items []T, op func(ctx context.Context, item T)) {
	var g errgroup.Group
	if d.config.MaxConcurrency > 0 {
		g.SetLimit(d.config.MaxConcurrency)
	}
	for _, item := range items {
		item := item
		g.Go(func() error {
			op(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) record(kind, result string) {
	if d.recorder != nil {
		d.recorder.Notification(kind, result)
	}
}

// Broadcast sends text to every chat.
func (d *Dispatcher) Broadcast(ctx context.Context, chats []string, text string, button *render.LinkButton) {
	fanOut(d, ctx, chats, func(ctx context.Context, chatID string) {
		if _, err := d.messenger.SendMessage(ctx, chatID, text, button); err != nil {
			d.record(KindBroadcast, ResultFailed)
			log.WithFields(log.Fields{"chat_id": chatID}).WithError(err).Warn("Failed to send message to chat")
			return
		}
		d.record(KindBroadcast, ResultOK)
	})
}

// AnnounceLive sends the live message to every chat and silently pins it. A
// successful pin is remembered so the message can be unpinned when the stream
// goes offline; a failed pin leaves the sent message in place.
func (d *Dispatcher) AnnounceLive(ctx context.Context, chats []string, stream types.Stream) {
	text := render.LiveMessage(stream)
	button := render.PumpFunButton(stream.Mint)

	fanOut(d, ctx, chats, func(ctx context.Context, chatID string) {
		logger := log.WithFields(log.Fields{"chat_id": chatID, "token": stream.Mint})

		messageID, err := d.messenger.SendMessage(ctx, chatID, text, &button)
		if err != nil {
			d.record(KindLive, ResultFailed)
			logger.WithError(err).Warn("Failed to notify chat")
			return
		}
		d.record(KindLive, ResultOK)

		logger = logger.WithField("message_id", messageID)
		if err := d.messenger.PinChatMessage(ctx, chatID, messageID, true); err != nil {
			d.record(KindPin, ResultFailed)
			logger.WithError(err).Warn("Failed to pin live message")
			return
		}
		d.record(KindPin, ResultOK)

		if err := d.store.UpsertPinnedMessage(ctx, chatID, stream.Mint, messageID); err != nil {
			logger.WithError(err).Error("Failed to remember pinned message")
		}
	})
}

// UnpinAll unpins every remembered live message of token. The bookkeeping row is
// deleted whether or not the unpin succeeded.
func (d *Dispatcher) UnpinAll(ctx context.Context, token string) error {
	pinned, err := d.store.FindPinnedMessages(ctx, token)
	if err != nil {
		return err
	}

	fanOut(d, ctx, pinned, func(ctx context.Context, p types.PinnedMessage) {
		logger := log.WithFields(log.Fields{"chat_id": p.ChatID, "message_id": p.MessageID, "token": token})

		if err := d.messenger.UnpinChatMessage(ctx, p.ChatID, p.MessageID); err != nil {
			d.record(KindUnpin, ResultFailed)
			logger.WithError(err).Warn("Failed to unpin message")
		} else {
			d.record(KindUnpin, ResultOK)
		}

		if err := d.store.DeletePinnedMessage(ctx, p.ChatID, token); err != nil {
			logger.WithError(err).Error("Failed to forget pinned message")
		}
	})
	return nil
}

// AnnounceOffline unpins the token's live messages and then tells every
// subscribed chat, pinned or not, that the stream went offline.
func (d *Dispatcher) AnnounceOffline(ctx context.Context, chats []string, stream types.Stream) error {
	if err := d.UnpinAll(ctx, stream.Mint); err != nil {
		return err
	}
	d.Broadcast(ctx, chats, render.OfflineMessage(stream), nil)
	return nil
}

// ApplyEdits rewrites the message of every fired alert. Edits that would not
// change the message are not failures.
func (d *Dispatcher) ApplyEdits(ctx context.Context, intents []alert.EditIntent) {
	fanOut(d, ctx, intents, func(ctx context.Context, intent alert.EditIntent) {
		button := intent.Button
		err := d.messenger.EditMessageText(ctx, intent.ChatID, intent.MessageID, intent.Text, &button)
		switch {
		case err == nil:
			d.record(KindEdit, ResultOK)
		case errors.Is(err, ErrNotModified):
			d.record(KindEdit, ResultUnchanged)
			log.WithFields(log.Fields{"chat_id": intent.ChatID, "message_id": intent.MessageID}).Debug("Alert message already up to date")
		default:
			d.record(KindEdit, ResultFailed)
			log.WithFields(log.Fields{
				"chat_id":    intent.ChatID,
				"message_id": intent.MessageID,
				"token":      intent.Token,
			}).WithError(err).Warn("Failed to update message in chat")
		}
	})
}
