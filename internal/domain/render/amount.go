// Package render produces the deterministic text shown to the agent for
// every tool result. Pure string interpolation: same inputs, same output.
package render

import "fmt"

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// FormatAmount renders an amount in cents as a currency string, e.g.
// "€120.00" or "$0.50". Currencies without a known symbol render as
// "CODE 12.34". No thousands separators.
func FormatAmount(cents int64, currency string) string {
	major := float64(cents) / 100
	if sym, ok := currencySymbols[currency]; ok {
		return fmt.Sprintf("%s%.2f", sym, major)
	}
	return fmt.Sprintf("%s %.2f", currency, major)
}
