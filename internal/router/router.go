// Package router turns feed events into store lookups, alert evaluations and
// notification batches. It holds no state of its own.
package router

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"itslive-telegram-bot/internal/alert"
	"itslive-telegram-bot/internal/feed"
	"itslive-telegram-bot/internal/notify"
	"itslive-telegram-bot/internal/types"
	"itslive-telegram-bot/lib/helpers"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	EventNowLive         = "nowLive"
	EventMarketCapUpdate = "market_cap_update"
	EventStreamOffline   = "streamOffline"
)

// SubscriberStore finds the chats subscribed to a token.
type SubscriberStore interface {
	FindSubscriberChats(ctx context.Context, token string) ([]string, error)
}

// Recorder counts routed events and fired alerts.
type Recorder interface {
	EventReceived(event string)
	AlertsFired(n int)
}

type Router struct {
	subscribers SubscriberStore
	engine      *alert.Engine
	dispatcher  *notify.Dispatcher
	recorder    Recorder
}

func New(subscribers SubscriberStore, engine *alert.Engine, dispatcher *notify.Dispatcher, recorder Recorder) *Router {
	return &Router{
		subscribers: subscribers,
		engine:      engine,
		dispatcher:  dispatcher,
		recorder:    recorder,
	}
}

// HandleEvent routes one feed event. Failures are logged here and never reach
// the feed client.
func (r *Router) HandleEvent(ctx context.Context, ev feed.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"event": ev.Name,
				"panic": rec,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic while handling event")
		}
	}()

	var handle func(context.Context, types.Stream) error
	switch ev.Name {
	case EventNowLive:
		handle = r.NowLive
	case EventMarketCapUpdate:
		handle = r.MarketCapUpdate
	case EventStreamOffline:
		handle = r.StreamOffline
	default:
		log.WithField("event", ev.Name).Debug("Ignoring unknown event")
		return
	}

	if r.recorder != nil {
		r.recorder.EventReceived(ev.Name)
	}

	var stream types.Stream
	if err := json.Unmarshal(ev.Payload, &stream); err != nil {
		log.WithField("event", ev.Name).WithError(err).Debug("Dropping event with malformed payload")
		return
	}

	if err := handle(ctx, stream); err != nil {
		log.WithFields(log.Fields{"event": ev.Name, "token": stream.Mint}).WithError(err).Error("Failed to handle event")
	}
}

// validMint reports whether the event names a token. Anything else is dropped
// quietly.
func validMint(event string, stream *types.Stream) bool {
	stream.Mint = helpers.NormalizeMint(stream.Mint)
	if stream.Mint == "" {
		log.WithField("event", event).Debug("Dropping event without mint")
		return false
	}
	return true
}

func (r *Router) subscriberChats(ctx context.Context, token string) ([]string, error) {
	chats, err := r.subscribers.FindSubscriberChats(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "find subscriber chats")
	}
	return lo.Uniq(chats), nil
}

// NowLive announces the stream to every subscribed chat and pins the announcement.
func (r *Router) NowLive(ctx context.Context, stream types.Stream) error {
	if !validMint(EventNowLive, &stream) {
		return nil
	}

	chats, err := r.subscriberChats(ctx, stream.Mint)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}

	log.WithFields(log.Fields{"token": stream.Mint, "chats": len(chats)}).Info("Token went live")
	r.dispatcher.AnnounceLive(ctx, chats, stream)
	return nil
}

// MarketCapUpdate evaluates the token's alerts against the new market cap and
// edits the message of every alert that fired.
func (r *Router) MarketCapUpdate(ctx context.Context, stream types.Stream) error {
	if !validMint(EventMarketCapUpdate, &stream) {
		return nil
	}
	if stream.MarketCapUSD == nil {
		log.WithField("token", stream.Mint).Debug("Dropping market cap update without market_cap_usd")
		return nil
	}

	intents, err := r.engine.Evaluate(ctx, alert.Observation{
		Token:        stream.Mint,
		MarketCapUSD: *stream.MarketCapUSD,
		Stream:       stream,
	})
	if err != nil {
		return err
	}
	if len(intents) == 0 {
		return nil
	}

	if r.recorder != nil {
		r.recorder.AlertsFired(len(intents))
	}
	r.dispatcher.ApplyEdits(ctx, intents)
	return nil
}

// StreamOffline unpins the live announcements and tells every subscriber.
func (r *Router) StreamOffline(ctx context.Context, stream types.Stream) error {
	if !validMint(EventStreamOffline, &stream) {
		return nil
	}

	chats, err := r.subscriberChats(ctx, stream.Mint)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}

	log.WithFields(log.Fields{"token": stream.Mint, "chats": len(chats)}).Info("Token went offline")
	return errors.Wrap(r.dispatcher.AnnounceOffline(ctx, chats, stream), "announce offline")
}
