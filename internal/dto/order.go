package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderAction string

const (
	OrderBuy  OrderAction = "buy"
	OrderSell OrderAction = "sell"
)

type OrderRequest struct {
	InstrumentID string          `json:"instrument_id"`
	Action       OrderAction     `json:"action"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TimeoutHint  time.Duration   `json:"timeout_hint"`
}

type OrderState struct {
	OrderID      string          `json:"order_id"`
	Filled       bool            `json:"filled"`
	FilledQty    decimal.Decimal `json:"filled_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}
