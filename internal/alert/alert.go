// Package alert evaluates streaming market cap observations against the market
// cap alerts chats have configured, and produces the message edits to perform.
package alert

import (
	"context"
	"math"

	"itslive-telegram-bot/internal/render"
	"itslive-telegram-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Store is the persistence the engine reads and writes.
type Store interface {
	GetMarketCap(ctx context.Context, token string) (types.TokenMarketCap, bool, error)
	UpsertMarketCap(ctx context.Context, token string, value float64) error
	FindAlertsForToken(ctx context.Context, token string) ([]types.MarketCapAlert, error)
}

// Observation is a new market cap reading for a token. Stream carries the feed
// payload, used only to label the rendered message.
type Observation struct {
	Token        string
	MarketCapUSD float64
	Stream       types.Stream
}

// EditIntent asks for the alert's message to be replaced with Text.
type EditIntent struct {
	ChatID    string
	MessageID int
	Token     string
	Text      string
	Button    render.LinkButton
}

// Engine holds no state of its own besides per-token locks: every decision is a
// function of the observation, the stored prior market cap and the stored alerts.
type Engine struct {
	store Store
	locks *tokenLocks
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		locks: newTokenLocks(),
	}
}

// ComputeChange measures the move from prior to current. A prior of zero means the
// token was never observed and counts as a 100% change.
func ComputeChange(prior, current float64) types.Change {
	change := types.Change{
		IsUp:           current > prior,
		AbsoluteChange: math.Abs(current - prior),
	}
	if prior == 0 {
		change.PercentChange = 100
	} else {
		change.PercentChange = change.AbsoluteChange / prior * 100
	}
	return change
}

// ShouldNotify decides whether a fires for change. Comparisons are inclusive, so
// a zero threshold or amount fires on every observation in its direction.
// Unknown kinds never fire.
func ShouldNotify(a types.MarketCapAlert, change types.Change) bool {
	directionMatches := (a.Direction == types.DirectionUp && change.IsUp) ||
		(a.Direction == types.DirectionDown && !change.IsUp)

	switch a.Kind {
	case types.KindThreshold:
		return directionMatches && change.PercentChange >= a.ThresholdPercent
	case types.KindAmount:
		return directionMatches && change.AbsoluteChange >= a.AmountUSD
	default:
		return false
	}
}

// Evaluate records obs as the token's current market cap and returns one edit per
// alert that fires, in stored alert order. Observations without a token are
// ignored. Store failures are returned to the caller.
func (e *Engine) Evaluate(ctx context.Context, obs Observation) ([]EditIntent, error) {
	if obs.Token == "" {
		return nil, nil
	}

	unlock := e.locks.lock(obs.Token)
	defer unlock()

	prior, _, err := e.store.GetMarketCap(ctx, obs.Token)
	if err != nil {
		return nil, errors.Wrap(err, "read prior market cap")
	}

	if err := e.store.UpsertMarketCap(ctx, obs.Token, obs.MarketCapUSD); err != nil {
		return nil, errors.Wrap(err, "store market cap")
	}

	change := ComputeChange(prior.MarketCapUSD, obs.MarketCapUSD)

	alerts, err := e.store.FindAlertsForToken(ctx, obs.Token)
	if err != nil {
		return nil, errors.Wrap(err, "load alerts")
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	log.WithFields(log.Fields{
		"token":   obs.Token,
		"prior":   prior.MarketCapUSD,
		"current": obs.MarketCapUSD,
		"percent": change.PercentChange,
		"up":      change.IsUp,
		"alerts":  len(alerts),
	}).Debug("Evaluating market cap alerts")

	var (
		text    string
		intents []EditIntent
	)
	for _, a := range alerts {
		if !ShouldNotify(a, change) {
			continue
		}
		if text == "" {
			text = render.MarketCapMessage(obs.Stream, obs.MarketCapUSD, change)
		}
		intents = append(intents, EditIntent{
			ChatID:    a.ChatID,
			MessageID: a.MessageID,
			Token:     obs.Token,
			Text:      text,
			Button:    render.PumpFunButton(obs.Token),
		})
	}
	return intents, nil
}
