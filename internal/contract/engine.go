package contract

import (
	"context"

	"prediction-trading/internal/dto"
)

// MarketDataProvider is the exchange quote interface. Implementations must
// return exact decimal prices; lossy floats are a contract violation.
type MarketDataProvider interface {
	GetQuote(ctx context.Context, instrumentID string) (*dto.Quote, error)
	GetLiquidity(ctx context.Context, instrumentID string) (*dto.Liquidity, error)
}

// OrderExecutionProvider is the exchange order interface.
type OrderExecutionProvider interface {
	PlaceOrder(ctx context.Context, req dto.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (*dto.OrderState, error)
}

// AlertSink surfaces conditions a human must be able to see: stale data,
// exhausted exit attempts, circuit breakers, broken invariants.
type AlertSink interface {
	RaiseAlert(ctx context.Context, severity, component, message string, details map[string]interface{}) error
}
