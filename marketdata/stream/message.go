package stream

import (
	"fmt"
	"time"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"

	msgTypeTrade = "trade"
	msgTypeError = "error"
	msgTypePing  = "ping"
)

// controlMessage is an outbound (un)subscribe instruction:
// {"type":"subscribe","symbol":"AAPL"}
type controlMessage struct {
	Type   string
	Symbol string
}

var _ easyjson.Marshaler = controlMessage{}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (m controlMessage) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	out.RawString(`"type":`)
	out.String(m.Type)
	out.RawString(`,"symbol":`)
	out.String(m.Symbol)
	out.RawByte('}')
}

func getSubChangeMessage(subscribe bool, symbol string) ([]byte, error) {
	action := actionSubscribe
	if !subscribe {
		action = actionUnsubscribe
	}
	return easyjson.Marshal(controlMessage{Type: action, Symbol: symbol})
}

// feedMessage is an inbound frame:
// {"type":"trade","data":[{"s":"AAPL","p":101.5,"t":1700000000000,"v":10}]}
type feedMessage struct {
	Type string
	Msg  string
	Data []tradeEntry
}

type tradeEntry struct {
	Symbol    string
	Price     float64
	Timestamp int64 // unix milliseconds
	Volume    float64
}

var _ easyjson.Unmarshaler = (*feedMessage)(nil)

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (m *feedMessage) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "type":
			m.Type = in.String()
		case "msg":
			m.Msg = in.String()
		case "data":
			in.Delim('[')
			if m.Data == nil {
				m.Data = make([]tradeEntry, 0, 4)
			}
			for !in.IsDelim(']') {
				var e tradeEntry
				e.unmarshalEasyJSON(in)
				m.Data = append(m.Data, e)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func (e *tradeEntry) unmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "s":
			e.Symbol = in.String()
		case "p":
			e.Price = in.Float64()
		case "t":
			e.Timestamp = in.Int64()
		case "v":
			e.Volume = in.Float64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

func parseMessage(b []byte) (feedMessage, error) {
	var m feedMessage
	if err := easyjson.Unmarshal(b, &m); err != nil {
		return feedMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// trades converts the valid entries of a trade batch. Entries without a
// symbol or with a non-positive price are dropped.
func (m feedMessage) trades() []Trade {
	trades := make([]Trade, 0, len(m.Data))
	for _, e := range m.Data {
		symbol := CanonicalSymbol(e.Symbol)
		if symbol == "" || e.Price <= 0 {
			continue
		}
		trades = append(trades, Trade{
			Symbol:    symbol,
			Price:     e.Price,
			Timestamp: time.UnixMilli(e.Timestamp),
			Volume:    e.Volume,
		})
	}
	return trades
}

// handleMessage applies a single inbound frame received on the connection
// with the given generation.
func (c *Client) handleMessage(gen uint64, b []byte) error {
	m, err := parseMessage(b)
	if err != nil {
		return err
	}

	switch m.Type {
	case msgTypeTrade:
		trades := m.trades()
		if len(trades) != len(m.Data) {
			c.logger.Warnf("livestream: dropped %d invalid entries of a trade batch", len(m.Data)-len(trades))
		}
		for _, t := range trades {
			if !c.isCurrent(gen) {
				return nil
			}
			c.cache.update(t)
		}
	case msgTypeError:
		c.logger.Errorf("livestream: error from server: %s", m.Msg)
		c.setError(gen, fmt.Sprintf("streaming error: %s", m.Msg))
	case msgTypePing:
	default:
		c.logger.Infof("livestream: ignoring message of type %q", m.Type)
	}
	return nil
}
