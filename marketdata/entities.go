package marketdata

// Quote is a snapshot quote of a symbol as returned by the quote endpoint
type Quote struct {
	// CurrentPrice is the last price. The endpoint reports 0 for unknown symbols.
	CurrentPrice  float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	// Timestamp is the unix time (seconds) of the quote
	Timestamp int64 `json:"t"`
}

// Price is the best known price of a symbol: live from the stream when
// there is one, otherwise from a snapshot quote.
type Price struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	// Change and ChangePercent are relative to the previous close. They are
	// only known for snapshot prices or when a snapshot was fetched earlier.
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	// Live is true if Price comes from the streaming feed
	Live bool `json:"live"`
}
