package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"itslive-telegram-bot/internal/pending"
	"itslive-telegram-bot/internal/types"
	"itslive-telegram-bot/lib/helpers"
	"itslive-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
)

// Callback data prefixes.
const (
	cbMarketCapAlert = "mc_alert"
	cbNotifyDir      = "notify_dir"
	cbNotifySave     = "notify_save"
	cbNotifyCancel   = "notify_cancel"
	cbNotifyView     = "notify_view"
	cbNotifyEdit     = "notify_edit"
	cbNotifyDelete   = "notify_delete"

	alertKindDelete = "delete"

	// menuThresholdPercent is the threshold offered by the group alert menu.
	menuThresholdPercent = 10
)

var menuTokenRe = regexp.MustCompile(`token:\s+(\S+)`)

// callbackData splits "prefix|arg|arg" button data.
func callbackData(data string) (string, []string) {
	parts := strings.Split(data, "|")
	return parts[0], parts[1:]
}

// menuToken reads the token back out of an alert menu message.
func menuToken(text string) (string, bool) {
	m := menuTokenRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

func menuText(token string) string {
	return translation.Translate("Set market cap alerts for token: %s", token)
}

func marketCapMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			translation.Translate("Alert me when market cap increases by %d%%", menuThresholdPercent),
			fmt.Sprintf("%s|threshold|%d|up", cbMarketCapAlert, menuThresholdPercent),
		)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			translation.Translate("Alert me when market cap decreases by %d%%", menuThresholdPercent),
			fmt.Sprintf("%s|threshold|%d|down", cbMarketCapAlert, menuThresholdPercent),
		)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			translation.Translate("Delete this alert"),
			cbMarketCapAlert+"|delete|0|none",
		)),
	)
}

// menuAlert builds the alert a mc_alert button asks for.
func menuAlert(args []string) (types.MarketCapAlert, bool) {
	if len(args) < 3 {
		return types.MarketCapAlert{}, false
	}
	kind, direction := types.AlertKind(args[0]), types.Direction(args[2])
	if (kind != types.KindThreshold && kind != types.KindAmount) || !direction.Valid() {
		return types.MarketCapAlert{}, false
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil || value < 0 {
		return types.MarketCapAlert{}, false
	}

	a := types.MarketCapAlert{Kind: kind, Direction: direction}
	if kind == types.KindThreshold {
		a.ThresholdPercent = value
	} else {
		a.AmountUSD = value
	}
	return a, true
}

func directionLabel(d types.Direction) string {
	if d == types.DirectionDown {
		return translation.Translate("down 🔽")
	}
	return translation.Translate("up 🔼")
}

// alertSummary describes when an alert fires.
func alertSummary(a types.MarketCapAlert) string {
	if a.Kind == types.KindAmount {
		return translation.Translate("%s by $%s", directionLabel(a.Direction), helpers.FormatUSD(a.AmountUSD))
	}
	return translation.Translate("%s by %s%%", directionLabel(a.Direction), helpers.FormatPercent(a.ThresholdPercent))
}

func wizardText(display string, p pending.Alert) string {
	return translation.Translate("Configure a market cap alert for %s\n\nDirection: %s\nThreshold: %s%%",
		display, directionLabel(p.Direction), helpers.FormatPercent(p.Threshold))
}

func checked(selected bool, label string) string {
	if selected {
		return "✅ " + label
	}
	return label
}

func wizardKeyboard(p pending.Alert) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(checked(p.Direction == types.DirectionUp, directionLabel(types.DirectionUp)), cbNotifyDir+"|up"),
			tgbotapi.NewInlineKeyboardButtonData(checked(p.Direction == types.DirectionDown, directionLabel(types.DirectionDown)), cbNotifyDir+"|down"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(translation.Translate("💾 Save"), cbNotifySave),
			tgbotapi.NewInlineKeyboardButtonData(translation.Translate("✖️ Cancel"), cbNotifyCancel),
		),
	)
}

func alertsKeyboard(alerts []types.MarketCapAlert) tgbotapi.InlineKeyboardMarkup {
	rows := lo.Map(alerts, func(a types.MarketCapAlert, _ int) []tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s · %s", helpers.ShortAddress(a.TokenAddress), alertSummary(a)),
			cbNotifyView+"|"+a.TokenAddress,
		))
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func alertViewText(display string, a types.MarketCapAlert) string {
	return translation.Translate("Market cap alert for %s\n\nNotify when market cap moves %s.", display, alertSummary(a))
}

func alertViewKeyboard(a types.MarketCapAlert) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(checked(a.Direction == types.DirectionUp, directionLabel(types.DirectionUp)), cbNotifyEdit+"|"+a.TokenAddress+"|up"),
			tgbotapi.NewInlineKeyboardButtonData(checked(a.Direction == types.DirectionDown, directionLabel(types.DirectionDown)), cbNotifyEdit+"|"+a.TokenAddress+"|down"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(translation.Translate("🗑 Delete alert"), cbNotifyDelete+"|"+a.TokenAddress),
		),
	)
}
