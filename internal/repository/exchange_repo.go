package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/dto"
	"prediction-trading/pkg/httpclient"
	"prediction-trading/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ExchangeRepository speaks to the prediction-market exchange REST API. It
// implements both the market data and the order execution contracts. All
// prices cross the wire as decimal strings; anything else is rejected as a
// contract violation.
type ExchangeRepository interface {
	GetQuote(ctx context.Context, instrumentID string) (*dto.Quote, error)
	GetLiquidity(ctx context.Context, instrumentID string) (*dto.Liquidity, error)
	PlaceOrder(ctx context.Context, req dto.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (*dto.OrderState, error)
}

type exchangeRepository struct {
	httpClient     httpclient.HTTPClient
	cfg            *config.Config
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

func NewExchangeRepository(cfg *config.Config, log *logger.Logger) ExchangeRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.Exchange.MaxRequestPerMin)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)

	return &exchangeRepository{
		httpClient:     httpclient.New(cfg.Exchange.BaseURL, cfg.Exchange.Timeout, cfg.Exchange.APIKey),
		cfg:            cfg,
		logger:         log,
		requestLimiter: requestLimiter,
	}
}

type marketResponse struct {
	Market struct {
		Ticker    string `json:"ticker"`
		YesBid    string `json:"yes_bid"`
		YesAsk    string `json:"yes_ask"`
		LastPrice string `json:"last_price"`
		Liquidity string `json:"liquidity"`
	} `json:"market"`
}

type orderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Status         string `json:"status"`
		FilledCount    string `json:"filled_count"`
		RemainingCount string `json:"remaining_count"`
		AvgFillPrice   string `json:"avg_fill_price"`
	} `json:"order"`
}

func (r *exchangeRepository) GetQuote(ctx context.Context, instrumentID string) (*dto.Quote, error) {
	var result marketResponse
	if _, err := r.fetchMarket(ctx, instrumentID, &result); err != nil {
		return nil, err
	}

	bid, err := parseExactDecimal(result.Market.YesBid)
	if err != nil {
		return nil, fmt.Errorf("yes_bid for %s: %w", instrumentID, err)
	}
	ask, err := parseExactDecimal(result.Market.YesAsk)
	if err != nil {
		return nil, fmt.Errorf("yes_ask for %s: %w", instrumentID, err)
	}
	last, err := parseExactDecimal(result.Market.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("last_price for %s: %w", instrumentID, err)
	}

	return &dto.Quote{
		InstrumentID: instrumentID,
		Bid:          bid,
		Ask:          ask,
		LastPrice:    last,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (r *exchangeRepository) GetLiquidity(ctx context.Context, instrumentID string) (*dto.Liquidity, error) {
	var result marketResponse
	if _, err := r.fetchMarket(ctx, instrumentID, &result); err != nil {
		return nil, err
	}

	bid, err := parseExactDecimal(result.Market.YesBid)
	if err != nil {
		return nil, fmt.Errorf("yes_bid for %s: %w", instrumentID, err)
	}
	ask, err := parseExactDecimal(result.Market.YesAsk)
	if err != nil {
		return nil, fmt.Errorf("yes_ask for %s: %w", instrumentID, err)
	}
	depth, err := parseExactDecimal(result.Market.Liquidity)
	if err != nil {
		return nil, fmt.Errorf("liquidity for %s: %w", instrumentID, err)
	}

	return &dto.Liquidity{
		InstrumentID: instrumentID,
		Spread:       ask.Sub(bid),
		Depth:        depth,
	}, nil
}

func (r *exchangeRepository) fetchMarket(ctx context.Context, instrumentID string, result *marketResponse) (*httpclient.BaseResponse, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/trade-api/v2/markets/%s", instrumentID)
	resp, err := r.httpClient.Get(ctx, endpoint, nil, nil, result)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", instrumentID, err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Exchange API returned Non-OK status for market",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("instrument_id", instrumentID),
			logger.StringField("body", string(resp.Body)))
		return nil, fmt.Errorf("exchange api returned status: %d", resp.StatusCode)
	}
	return resp, nil
}

func (r *exchangeRepository) PlaceOrder(ctx context.Context, req dto.OrderRequest) (string, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"ticker":     req.InstrumentID,
		"action":     string(req.Action),
		"side":       "yes",
		"type":       "limit",
		"yes_price":  req.Price.String(),
		"count":      req.Quantity.String(),
		"expiration": int(req.TimeoutHint.Seconds()),
	}

	var result orderResponse
	resp, err := r.httpClient.Post(ctx, "/trade-api/v2/portfolio/orders", body, nil, &result)
	if err != nil {
		return "", fmt.Errorf("failed to place order for %s: %w", req.InstrumentID, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		r.logger.Error("Exchange API rejected order",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("instrument_id", req.InstrumentID),
			logger.StringField("body", string(resp.Body)))
		return "", fmt.Errorf("exchange api returned status: %d", resp.StatusCode)
	}

	return result.Order.OrderID, nil
}

func (r *exchangeRepository) CancelOrder(ctx context.Context, orderID string) error {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", orderID)
	resp, err := r.httpClient.Delete(ctx, endpoint, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("exchange api returned status %d cancelling order %s", resp.StatusCode, orderID)
	}
	return nil
}

func (r *exchangeRepository) GetOrderStatus(ctx context.Context, orderID string) (*dto.OrderState, error) {
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/trade-api/v2/portfolio/orders/%s", orderID)
	var result orderResponse
	resp, err := r.httpClient.Get(ctx, endpoint, nil, nil, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange api returned status %d for order %s", resp.StatusCode, orderID)
	}

	filledQty, err := parseExactDecimal(result.Order.FilledCount)
	if err != nil {
		return nil, fmt.Errorf("filled_count for order %s: %w", orderID, err)
	}
	remainingQty, err := parseExactDecimal(result.Order.RemainingCount)
	if err != nil {
		return nil, fmt.Errorf("remaining_count for order %s: %w", orderID, err)
	}
	avgFill := decimal.Zero
	if result.Order.AvgFillPrice != "" {
		avgFill, err = parseExactDecimal(result.Order.AvgFillPrice)
		if err != nil {
			return nil, fmt.Errorf("avg_fill_price for order %s: %w", orderID, err)
		}
	}

	return &dto.OrderState{
		OrderID:      result.Order.OrderID,
		Filled:       remainingQty.IsZero(),
		FilledQty:    filledQty,
		RemainingQty: remainingQty,
		AvgFillPrice: avgFill,
	}, nil
}

// parseExactDecimal parses a wire price. The exchange contract requires exact
// decimal strings; an empty or malformed value is a contract violation, not a
// zero.
func parseExactDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, dto.ErrInexactPrice
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", dto.ErrInexactPrice, s)
	}
	return d, nil
}
