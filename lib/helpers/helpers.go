package helpers

import (
	"math"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mr-tron/base58"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	whitespace    = regexp.MustCompile(`\s+`)
	base58Charset = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,}$`)
)

// NormalizeMint strips every whitespace character from a pasted token address.
func NormalizeMint(raw string) string {
	return whitespace.ReplaceAllString(raw, "")
}

// IsValidMint reports whether mint looks like a Solana public key: at least 32
// base58 characters decoding to 32 bytes.
func IsValidMint(mint string) bool {
	if !base58Charset.MatchString(mint) {
		return false
	}
	decoded, err := base58.Decode(mint)
	return err == nil && len(decoded) == 32
}

// ShortAddress renders a long address as its first and last four characters.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}

// FormatUSD formats a dollar amount with thousands separators, dropping
// decimals for large values.
func FormatUSD(amount float64) string {
	decimals := 6

	abs := math.Abs(amount)
	if abs >= 1000 {
		decimals = 0
	} else if abs > 1.2 {
		decimals = 2
	} else if abs < 0.00001 && abs != 0 {
		decimals = 8
	} else if abs == 0 {
		decimals = 0
	}

	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, amount)
}

// FormatCount formats viewer or holder counts, 12345 -> "12,345".
func FormatCount(count float64) string {
	return humanize.Commaf(math.Round(count))
}

// FormatPercent renders a percentage with at most one decimal, 15 -> "15", 65.21 -> "65.2".
func FormatPercent(percent float64) string {
	p := message.NewPrinter(language.English)
	s := p.Sprintf("%.1f", percent)
	return strings.TrimSuffix(s, ".0")
}
