package types

import "time"

// AlertKind selects how a market cap alert measures change.
type AlertKind string

const (
	KindThreshold AlertKind = "threshold"
	KindAmount    AlertKind = "amount"
)

// Direction is the market cap movement an alert listens for.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is up or down.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

type Subscription struct {
	ChatID       string    `json:"chat_id"`
	TokenAddress string    `json:"token_address"`
	CreatedAt    time.Time `json:"created_at"`
}

type PinnedMessage struct {
	ChatID       string `json:"chat_id"`
	TokenAddress string `json:"token_address"`
	MessageID    int    `json:"message_id"`
}

// MarketCapAlert is unique per (chat, token). MessageID is the message edited when
// the alert fires.
type MarketCapAlert struct {
	ChatID           string    `json:"chat_id"`
	TokenAddress     string    `json:"token_address"`
	MessageID        int       `json:"message_id"`
	Kind             AlertKind `json:"type"`
	ThresholdPercent float64   `json:"threshold"`
	AmountUSD        float64   `json:"amount"`
	Direction        Direction `json:"direction"`
	CreatedAt        time.Time `json:"created_at"`
}

type TokenMarketCap struct {
	TokenAddress string    `json:"token_address"`
	MarketCapUSD float64   `json:"market_cap_usd"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Stream is the payload of the livestream feed events.
type Stream struct {
	Mint            string   `json:"mint"`
	Name            string   `json:"name,omitempty"`
	Symbol          string   `json:"symbol,omitempty"`
	LivestreamTitle string   `json:"livestream_title,omitempty"`
	Viewers         *float64 `json:"viewers,omitempty"`
	Holders         *float64 `json:"holders,omitempty"`
	MarketCapUSD    *float64 `json:"market_cap_usd,omitempty"`
}

// Change describes the market cap movement between two observations of a token.
type Change struct {
	IsUp           bool
	AbsoluteChange float64
	PercentChange  float64
}
