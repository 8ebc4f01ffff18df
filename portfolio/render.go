package portfolio

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// formatMoney displays amount in currency, rounded to the currency's minor
// unit.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func formatSignedMoney(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + formatMoney(amount, currency)
	}
	return formatMoney(amount, currency)
}

func formatPercent(p decimal.Decimal) string {
	if p.IsPositive() {
		return "+" + p.StringFixed(2) + "%"
	}
	return p.StringFixed(2) + "%"
}

// Markdown renders s as a markdown table followed by a total line.
func (s Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("| Symbol | Shares | Price | Value | Day | Gain | Gain % |\n")
	b.WriteString("| --- | ---: | ---: | ---: | ---: | ---: | ---: |\n")
	for _, r := range s.Rows {
		if !r.Priced {
			fmt.Fprintf(&b, "| %s | %s | n/a | n/a | n/a | n/a | n/a |\n", r.Symbol, r.Shares)
			continue
		}
		price := formatMoney(r.Price, s.Currency)
		if !r.Live {
			price += " *"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.Symbol, r.Shares, price,
			formatMoney(r.MarketValue, s.Currency),
			formatSignedMoney(r.DayChange, s.Currency),
			formatSignedMoney(r.Gain, s.Currency),
			formatPercent(r.GainPercent))
	}
	t := s.Total
	fmt.Fprintf(&b, "| **%s** | | | **%s** | %s | %s | %s |\n",
		t.Symbol,
		formatMoney(t.MarketValue, s.Currency),
		formatSignedMoney(t.DayChange, s.Currency),
		formatSignedMoney(t.Gain, s.Currency),
		formatPercent(t.GainPercent))

	if hasDelayed(s.Rows) {
		b.WriteString("\n\\* delayed quote\n")
	}
	if len(s.Missing) > 0 {
		fmt.Fprintf(&b, "\nNo price for %s.\n", strings.Join(s.Missing, ", "))
	}
	return b.String()
}

func hasDelayed(rows []Row) bool {
	for _, r := range rows {
		if r.Priced && !r.Live {
			return true
		}
	}
	return false
}
