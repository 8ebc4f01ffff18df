package server

import (
	"github.com/foliowatch/foliowatch/marketdata"
	"github.com/foliowatch/foliowatch/marketdata/stream"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameTrade       = "trade"
	frameStatus      = "status"
	frameError       = "error"
)

// request is a frame sent by a browser. subscribe replaces the socket's
// symbol set, unsubscribe empties it.
type request struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

type tradeFrame struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
	Volume    float64 `json:"volume"`
}

func newTradeFrame(t stream.Trade) tradeFrame {
	return tradeFrame{
		Type:      frameTrade,
		Symbol:    t.Symbol,
		Price:     t.Price,
		Timestamp: t.Timestamp.UnixMilli(),
		Volume:    t.Volume,
	}
}

type statusFrame struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func newStatusFrame(s stream.Status) statusFrame {
	return statusFrame{
		Type:      frameStatus,
		State:     s.State.String(),
		Connected: s.Connected,
		Error:     s.Error,
	}
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type priceEntry struct {
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Live          bool    `json:"live"`
}

type pricesResponse struct {
	Prices map[string]priceEntry `json:"prices"`
	Error  string                `json:"error,omitempty"`
}

func newPricesResponse(prices map[string]marketdata.Price, err error) pricesResponse {
	resp := pricesResponse{Prices: make(map[string]priceEntry, len(prices))}
	for symbol, p := range prices {
		resp.Prices[symbol] = priceEntry{
			Price:         p.Price,
			Change:        p.Change,
			ChangePercent: p.ChangePercent,
			Live:          p.Live,
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
