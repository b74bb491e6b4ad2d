package service

import (
	"context"
	"fmt"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/pkg/cache"
	"prediction-trading/pkg/common"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/ratelimit"
)

// QuoteService shields the evaluator and trailing tracker from redundant
// external calls. A cache hit costs no call budget; a miss draws one token
// from the shared budget per attempted fetch.
type QuoteService struct {
	cfg           *config.Config
	log           *logger.Logger
	inmemoryCache cache.Cache
	marketData    contract.MarketDataProvider
	budget        *ratelimit.TokenLimiter
}

func NewQuoteService(
	cfg *config.Config,
	log *logger.Logger,
	inmemoryCache cache.Cache,
	marketData contract.MarketDataProvider,
	budget *ratelimit.TokenLimiter,
) *QuoteService {
	return &QuoteService{
		cfg:           cfg,
		log:           log,
		inmemoryCache: inmemoryCache,
		marketData:    marketData,
		budget:        budget,
	}
}

func (s *QuoteService) GetQuote(ctx context.Context, instrumentID string) (*dto.Quote, error) {
	key := fmt.Sprintf(common.KEY_QUOTE, instrumentID)
	if quote, found := cache.GetTyped[*dto.Quote](s.inmemoryCache, key); found {
		return quote, nil
	}

	quote, err := fetchWithRetry(ctx, s, func(ctx context.Context) (*dto.Quote, error) {
		return s.marketData.GetQuote(ctx, instrumentID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dto.ErrNoQuote, err)
	}

	s.inmemoryCache.Set(key, quote, s.cfg.Engine.QuoteTTL)
	return quote, nil
}

func (s *QuoteService) GetLiquidity(ctx context.Context, instrumentID string) (*dto.Liquidity, error) {
	key := fmt.Sprintf(common.KEY_LIQUIDITY, instrumentID)
	if liq, found := cache.GetTyped[*dto.Liquidity](s.inmemoryCache, key); found {
		return liq, nil
	}

	liq, err := fetchWithRetry(ctx, s, func(ctx context.Context) (*dto.Liquidity, error) {
		return s.marketData.GetLiquidity(ctx, instrumentID)
	})
	if err != nil {
		return nil, err
	}

	s.inmemoryCache.Set(key, liq, s.cfg.Engine.QuoteTTL)
	return liq, nil
}

// fetchWithRetry retries a transient fetch failure with bounded backoff.
// Every attempt draws from the shared call budget before it goes out.
func fetchWithRetry[T any](ctx context.Context, s *QuoteService, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= s.cfg.Engine.FetchMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(s.cfg.Engine.FetchRetryBackoff * time.Duration(attempt)):
			}
		}

		if err := s.budget.Wait(ctx, 1); err != nil {
			return zero, err
		}

		result, err := fetch(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		s.log.WarnContext(ctx, "Market data fetch failed",
			logger.IntField("attempt", attempt+1),
			logger.ErrorField(err))
	}

	return zero, lastErr
}
