package service

import (
	"context"
	"fmt"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/logger"

	"github.com/shopspring/decimal"
)

// ExitEvaluator decides whether a position should exit and why. At most one
// condition fires per pass: conditions are checked in a fixed table order
// that runs from the highest priority tier down, so the first true condition
// is always the highest-priority one and the decision is reproducible from
// identical inputs.
type ExitEvaluator struct {
	cfg        *config.Config
	log        *logger.Logger
	strategies contract.StrategyStore
}

func NewExitEvaluator(cfg *config.Config, log *logger.Logger, strategies contract.StrategyStore) *ExitEvaluator {
	return &ExitEvaluator{
		cfg:        cfg,
		log:        log,
		strategies: strategies,
	}
}

// Evaluate returns the exit decision for one position. Missing inputs yield
// "no decision" with a reason; absence of data is never read as "no exit
// needed".
func (e *ExitEvaluator) Evaluate(ctx context.Context, pos *model.Position, quote *dto.Quote, liq *dto.Liquidity, now time.Time) (dto.ExitDecision, error) {
	if pos.Status != model.StatusOpen {
		return dto.ExitDecision{Reason: "position not open"}, nil
	}
	if quote == nil {
		return dto.ExitDecision{Reason: "no quote available"}, nil
	}

	// Exit rules resolve through the strategy version locked at entry, never
	// through whatever is currently active.
	rules, err := e.strategies.ResolveStrategyVersion(ctx, pos.StrategyID)
	if err != nil {
		return dto.ExitDecision{Reason: "strategy version unresolved"}, fmt.Errorf("resolve strategy %s: %w", pos.StrategyID, err)
	}

	price := markPrice(quote)
	if price.IsZero() {
		return dto.ExitDecision{Reason: "no usable price"}, nil
	}
	edge := pos.Edge(price)

	checks := []struct {
		condition model.ExitCondition
		fired     bool
	}{
		{model.ExitStopLoss, crossedProtective(pos, price, pos.StopLossPrice)},
		{model.ExitCircuitBreaker, e.circuitBreaker(pos, price, rules)},
		{model.ExitTrailingStop, trailingCrossed(pos, price)},
		{model.ExitTimeBasedUrgent, e.timeUrgent(pos, rules, now)},
		{model.ExitLiquidityDriedUp, liquidityDriedUp(liq, rules)},
		{model.ExitProfitTarget, crossedFavorable(pos, price, pos.TargetPrice)},
		{model.ExitPartialTarget, partialTarget(pos, price, rules)},
		{model.ExitEarly, earlyExit(edge, rules)},
		{model.ExitEdgeDisappeared, edge.LessThanOrEqual(decimal.Zero)},
		{model.ExitRebalance, rebalanceDrift(pos, price, rules)},
	}

	for _, c := range checks {
		if c.fired {
			return dto.ExitDecision{
				Fired:        true,
				Condition:    c.condition,
				Priority:     dto.ConditionPriority(c.condition),
				TriggerPrice: price,
				Edge:         edge,
			}, nil
		}
	}

	return dto.ExitDecision{Reason: "no condition met", TriggerPrice: price, Edge: edge}, nil
}

// markPrice prefers the book midpoint and falls back to the last trade.
func markPrice(q *dto.Quote) decimal.Decimal {
	if q.Bid.IsZero() && q.Ask.IsZero() {
		return q.LastPrice
	}
	return q.Mid()
}

// crossedProtective reports whether price has hit a protective threshold:
// at-or-below for a yes position, at-or-above for a no position.
func crossedProtective(pos *model.Position, price, threshold decimal.Decimal) bool {
	if threshold.IsZero() {
		return false
	}
	if pos.IsShort() {
		return price.GreaterThanOrEqual(threshold)
	}
	return price.LessThanOrEqual(threshold)
}

// crossedFavorable is the mirror: at-or-above a favorable threshold for yes,
// at-or-below for no.
func crossedFavorable(pos *model.Position, price, threshold decimal.Decimal) bool {
	if threshold.IsZero() {
		return false
	}
	if pos.IsShort() {
		return price.LessThanOrEqual(threshold)
	}
	return price.GreaterThanOrEqual(threshold)
}

func trailingCrossed(pos *model.Position, price decimal.Decimal) bool {
	if !pos.Trailing.IsActive {
		return false
	}
	if pos.IsShort() {
		return price.GreaterThanOrEqual(pos.Trailing.CurrentStopPrice)
	}
	return price.LessThanOrEqual(pos.Trailing.CurrentStopPrice)
}

func (e *ExitEvaluator) circuitBreaker(pos *model.Position, price decimal.Decimal, rules *model.ExitRules) bool {
	if rules.CircuitBreakerLossPct.IsZero() {
		return false
	}
	move := pos.FavorableMove(price)
	return move.IsNegative() && move.Neg().GreaterThanOrEqual(rules.CircuitBreakerLossPct)
}

func (e *ExitEvaluator) timeUrgent(pos *model.Position, rules *model.ExitRules, now time.Time) bool {
	window := e.cfg.Engine.TimeUrgentWindow
	if rules.TimeUrgentMinutes > 0 {
		window = time.Duration(rules.TimeUrgentMinutes) * time.Minute
	}
	return pos.EventCloseTime.Sub(now) <= window
}

// liquidityDriedUp only fires on observed bad liquidity; missing liquidity
// data is not a trigger.
func liquidityDriedUp(liq *dto.Liquidity, rules *model.ExitRules) bool {
	if liq == nil {
		return false
	}
	if !rules.MaxSpread.IsZero() && liq.Spread.GreaterThan(rules.MaxSpread) {
		return true
	}
	if !rules.MinDepth.IsZero() && liq.Depth.LessThan(rules.MinDepth) {
		return true
	}
	return false
}

func partialTarget(pos *model.Position, price decimal.Decimal, rules *model.ExitRules) bool {
	if !rules.PartialExitEnabled || pos.PartialExitTaken {
		return false
	}
	return crossedFavorable(pos, price, rules.PartialExitPrice)
}

func earlyExit(edge decimal.Decimal, rules *model.ExitRules) bool {
	if rules.MinEdge.IsZero() {
		return false
	}
	return edge.IsPositive() && edge.LessThan(rules.MinEdge)
}

func rebalanceDrift(pos *model.Position, price decimal.Decimal, rules *model.ExitRules) bool {
	if rules.RebalanceDriftPct.IsZero() {
		return false
	}
	return pos.FavorableMove(price).Abs().GreaterThanOrEqual(rules.RebalanceDriftPct)
}
