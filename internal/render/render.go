// Package render builds the outbound notification texts and the link-out button
// attached to every livestream notification.
package render

import (
	"fmt"
	"strings"

	"itslive-telegram-bot/internal/types"
	"itslive-telegram-bot/lib/helpers"
	"itslive-telegram-bot/lib/translation"
)

const pumpFunCoinURL = "https://pump.fun/coin/"

// LinkButton is an inline button opening URL.
type LinkButton struct {
	Text string
	URL  string
}

// PumpFunButton links to the token page on pump.fun.
func PumpFunButton(mint string) LinkButton {
	return LinkButton{
		Text: translation.Translate("Open on Pumpfun"),
		URL:  pumpFunCoinURL + mint,
	}
}

// StreamLabel prefers the token name, then its symbol.
func StreamLabel(stream types.Stream) string {
	if stream.Name != "" {
		return stream.Name
	}
	if stream.Symbol != "" {
		return stream.Symbol
	}
	return translation.Translate("Unnamed token")
}

func LiveMessage(stream types.Stream) string {
	var b strings.Builder
	b.WriteString(translation.Translate("🟢 %s is LIVE!", StreamLabel(stream)))

	if stream.LivestreamTitle != "" {
		b.WriteString("\n\n🎬 ")
		b.WriteString(stream.LivestreamTitle)
	}

	if stream.Viewers != nil {
		b.WriteString("\n")
		b.WriteString(translation.Translate("👀 Viewers: %s", helpers.FormatCount(*stream.Viewers)))
		if stream.MarketCapUSD != nil {
			b.WriteString("\n")
			b.WriteString(translation.Translate("💰 Market Cap: $%s", helpers.FormatUSD(*stream.MarketCapUSD)))
		}
		if stream.Holders != nil {
			b.WriteString("\n")
			b.WriteString(translation.Translate("👤 Holders: %s", helpers.FormatCount(*stream.Holders)))
		}
	}

	b.WriteString(" 🚀")
	return b.String()
}

func MarketCapMessage(stream types.Stream, marketCapUSD float64, change types.Change) string {
	text := translation.Translate("📈 %s market cap updated: $%s", StreamLabel(stream), helpers.FormatUSD(marketCapUSD))

	sign, arrow := "+", "🔼"
	if !change.IsUp {
		sign, arrow = "-", "🔽"
	}
	return text + fmt.Sprintf("\n%s %s%s%% (%s$%s)",
		arrow, sign, helpers.FormatPercent(change.PercentChange), sign, helpers.FormatUSD(change.AbsoluteChange))
}

func OfflineMessage(stream types.Stream) string {
	return translation.Translate("🔴 %s went offline.", StreamLabel(stream))
}
