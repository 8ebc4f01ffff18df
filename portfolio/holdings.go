package portfolio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/foliowatch/foliowatch/marketdata/stream"
)

// Holding is a position in one symbol. CostBasis is the price paid per share.
type Holding struct {
	Symbol    string
	Shares    decimal.Decimal
	CostBasis decimal.Decimal
}

// UnmarshalYAML reads numbers as decimal strings so no precision is lost to
// float parsing.
func (h *Holding) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Symbol    string `yaml:"symbol"`
		Shares    string `yaml:"shares"`
		CostBasis string `yaml:"costBasis"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	shares, err := decimal.NewFromString(raw.Shares)
	if err != nil {
		return fmt.Errorf("line %d: shares: %w", node.Line, err)
	}
	var cost decimal.Decimal
	if raw.CostBasis != "" {
		if cost, err = decimal.NewFromString(raw.CostBasis); err != nil {
			return fmt.Errorf("line %d: costBasis: %w", node.Line, err)
		}
	}
	h.Symbol = stream.CanonicalSymbol(raw.Symbol)
	h.Shares = shares
	h.CostBasis = cost
	return nil
}

// Book is the content of a holdings file.
type Book struct {
	// Currency is an ISO 4217 code, USD when empty
	Currency string    `yaml:"currency"`
	Holdings []Holding `yaml:"holdings"`
}

var ErrInvalidHolding = errors.New("invalid holding")

// ParseBook decodes a holdings file. Positions in the same symbol are merged,
// their cost basis weighted by shares.
func ParseBook(r io.Reader) (*Book, error) {
	var b Book
	if err := yaml.NewDecoder(r).Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if b.Currency == "" {
		b.Currency = "USD"
	}

	merged := make(map[string]Holding, len(b.Holdings))
	for i, h := range b.Holdings {
		if h.Symbol == "" {
			return nil, fmt.Errorf("%w: holding %d has no symbol", ErrInvalidHolding, i)
		}
		if !h.Shares.IsPositive() {
			return nil, fmt.Errorf("%w: %s has %s shares", ErrInvalidHolding, h.Symbol, h.Shares)
		}
		if h.CostBasis.IsNegative() {
			return nil, fmt.Errorf("%w: %s has a negative cost basis", ErrInvalidHolding, h.Symbol)
		}
		prev, ok := merged[h.Symbol]
		if !ok {
			merged[h.Symbol] = h
			continue
		}
		shares := prev.Shares.Add(h.Shares)
		cost := prev.Shares.Mul(prev.CostBasis).Add(h.Shares.Mul(h.CostBasis))
		merged[h.Symbol] = Holding{
			Symbol:    h.Symbol,
			Shares:    shares,
			CostBasis: cost.Div(shares),
		}
	}

	b.Holdings = b.Holdings[:0]
	for _, h := range merged {
		b.Holdings = append(b.Holdings, h)
	}
	sort.Slice(b.Holdings, func(i, j int) bool { return b.Holdings[i].Symbol < b.Holdings[j].Symbol })
	return &b, nil
}

// LoadBook reads the holdings file at path.
func LoadBook(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := ParseBook(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Symbols returns the sorted symbols of the book.
func (b *Book) Symbols() []string {
	symbols := make([]string, len(b.Holdings))
	for i, h := range b.Holdings {
		symbols[i] = h.Symbol
	}
	return symbols
}
