package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a last-seen market snapshot, always in yes terms.
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Mid returns the spread midpoint, or the last trade when the book is empty.
func (q *Quote) Mid() decimal.Decimal {
	if q.Bid.IsZero() && q.Ask.IsZero() {
		return q.LastPrice
	}
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

type Liquidity struct {
	InstrumentID string          `json:"instrument_id"`
	Spread       decimal.Decimal `json:"spread"`
	Depth        decimal.Decimal `json:"depth"`
}
