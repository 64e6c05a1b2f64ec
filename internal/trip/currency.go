package trip

import (
	"fmt"
	"strings"
)

// currencyAliases maps the symbols, words and codes travelers actually type
// to ISO 4217 codes. Matches the set the intent decomposer emits.
var currencyAliases = map[string]string{
	"$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP", "pound": "GBP", "pounds": "GBP",
	"₹": "INR", "inr": "INR", "rupee": "INR", "rupees": "INR",
	"¥": "JPY", "jpy": "JPY", "yen": "JPY",
}

var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "INR": "₹", "JPY": "¥",
}

// NormalizeCurrency maps a currency symbol, word or code to its ISO 4217 code.
func NormalizeCurrency(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	iso, ok := currencyAliases[key]
	return iso, ok
}

// FormatAmount renders a minor-unit amount for human-facing summaries.
func FormatAmount(cents int64, currency string) string {
	if sym, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%.2f", sym, float64(cents)/100)
	}
	return fmt.Sprintf("%s %.2f", currency, float64(cents)/100)
}
