package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/foliowatch/foliowatch/marketdata"
)

var hundred = decimal.NewFromInt(100)

// Row is the valuation of one holding. Rows without a price only carry the
// cost side.
type Row struct {
	Symbol      string
	Shares      decimal.Decimal
	Price       decimal.Decimal
	MarketValue decimal.Decimal
	Cost        decimal.Decimal
	Gain        decimal.Decimal
	GainPercent decimal.Decimal
	// DayChange is the change of the position's value since the previous close
	DayChange decimal.Decimal
	Priced    bool
	Live      bool
}

// Summary is a valued book. Total only sums the priced rows.
type Summary struct {
	Currency string
	Rows     []Row
	Total    Row
	Missing  []string
}

// Summarize values every holding of b at prices.
func Summarize(b *Book, prices map[string]marketdata.Price) Summary {
	s := Summary{Currency: b.Currency, Total: Row{Symbol: "Total", Priced: true}}
	for _, h := range b.Holdings {
		row := Row{
			Symbol: h.Symbol,
			Shares: h.Shares,
			Cost:   h.Shares.Mul(h.CostBasis),
		}
		p, ok := prices[h.Symbol]
		if !ok || !(p.Price > 0) {
			s.Missing = append(s.Missing, h.Symbol)
			s.Rows = append(s.Rows, row)
			continue
		}
		row.Priced = true
		row.Live = p.Live
		row.Price = decimal.NewFromFloat(p.Price)
		row.MarketValue = h.Shares.Mul(row.Price)
		row.Gain = row.MarketValue.Sub(row.Cost)
		row.GainPercent = percent(row.Gain, row.Cost)
		row.DayChange = h.Shares.Mul(decimal.NewFromFloat(p.Change))
		s.Rows = append(s.Rows, row)

		s.Total.MarketValue = s.Total.MarketValue.Add(row.MarketValue)
		s.Total.Cost = s.Total.Cost.Add(row.Cost)
		s.Total.DayChange = s.Total.DayChange.Add(row.DayChange)
	}
	s.Total.Gain = s.Total.MarketValue.Sub(s.Total.Cost)
	s.Total.GainPercent = percent(s.Total.Gain, s.Total.Cost)
	return s
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
