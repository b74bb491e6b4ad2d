package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/common"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/ratelimit"

	"github.com/shopspring/decimal"
)

// ExecutionStrategist realizes a fired exit decision against the exchange.
// It owns the position (status closing) for the duration, keeps exactly one
// live order at a time, walks the price toward marketable on timeouts with
// tier-specific limits, and logs every attempt whatever its outcome.
type ExecutionStrategist struct {
	cfg        *config.Config
	log        *logger.Logger
	orders     contract.OrderExecutionProvider
	quotes     *QuoteService
	positions  contract.PositionStore
	attempts   contract.ExitAttemptStore
	strategies contract.StrategyStore
	alerts     contract.AlertSink
	budget     *ratelimit.TokenLimiter
}

func NewExecutionStrategist(
	cfg *config.Config,
	log *logger.Logger,
	orders contract.OrderExecutionProvider,
	quotes *QuoteService,
	positions contract.PositionStore,
	attempts contract.ExitAttemptStore,
	strategies contract.StrategyStore,
	alerts contract.AlertSink,
	budget *ratelimit.TokenLimiter,
) *ExecutionStrategist {
	return &ExecutionStrategist{
		cfg:        cfg,
		log:        log,
		orders:     orders,
		quotes:     quotes,
		positions:  positions,
		attempts:   attempts,
		strategies: strategies,
		alerts:     alerts,
		budget:     budget,
	}
}

type attemptResult struct {
	outcome   model.AttemptOutcome
	orderID   string
	filledQty decimal.Decimal
	avgPrice  decimal.Decimal
}

// ExecuteExit drives one position's exit to completion: claim, walk,
// escalate, record. It never silently gives up: total exhaustion leaves the
// position in status closing, flagged for manual intervention.
func (s *ExecutionStrategist) ExecuteExit(ctx context.Context, pos *model.Position, decision dto.ExitDecision) error {
	if !decision.Fired {
		return nil
	}
	if pos.IsTerminal() {
		return nil
	}

	log := s.log.With(
		logger.StringField("position_key", pos.PositionKey.String()),
		logger.StringField("condition", string(decision.Condition)),
		logger.StringField("priority", decision.Priority.String()),
	)

	// Claim ownership. While status is closing the scheduler leaves the
	// position alone, so the attempt sequence stays strictly sequential.
	if pos.Status == model.StatusOpen {
		pos.Status = model.StatusClosing
		pos.PendingExitReason = &decision.Condition
		claimed, err := s.positions.SaveMonitorUpdate(ctx, pos)
		if err != nil {
			return fmt.Errorf("failed to claim position for exit: %w", err)
		}
		pos = claimed

		if decision.Condition == model.ExitCircuitBreaker {
			_ = s.alerts.RaiseAlert(ctx, common.ALERT_SEVERITY_CRITICAL, common.COMPONENT_EXECUTOR, common.ALERT_CIRCUIT_BREAKER, map[string]interface{}{
				"position_key":  pos.PositionKey.String(),
				"instrument":    pos.InstrumentID,
				"trigger_price": decision.TriggerPrice.String(),
			})
		}
	} else if pos.Status != model.StatusClosing {
		return dto.ErrPositionOwned
	}

	exitQty, err := s.exitQuantity(ctx, pos, decision)
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "Executing exit",
		logger.StringField("exit_qty", exitQty.String()),
		logger.IntField("walk_count", pos.ExitWalkCount))

	tier := decision.Priority
	walk := pos.ExitWalkCount // continues across partial fills and resumes
	attemptNo := walk

	for {
		policy := dto.PolicyFor(tier)

		for walk < policy.MaxWalks {
			if ctx.Err() != nil {
				// Shutdown mid-exit: the position stays closing with its walk
				// count persisted, so startup reconciliation resumes it.
				return s.persistWalkProgress(pos, walk, ctx.Err())
			}

			attemptNo++
			result, _, err := s.placeAndWait(ctx, pos, decision, policy, walk, attemptNo, exitQty)
			if err != nil && result == nil {
				return s.persistWalkProgress(pos, walk, err)
			}

			switch result.outcome {
			case model.AttemptFilled:
				return s.settleFill(ctx, pos, decision, result, exitQty)
			case model.AttemptPartialFilled:
				return s.recordPartialExit(ctx, pos, decision, result, walk+1)
			default:
				walk++
			}
		}

		switch tier {
		case model.PriorityCritical, model.PriorityHigh:
			// One final marketable order before declaring the exit stuck.
			attemptNo++
			result, _, err := s.placeAndWait(ctx, pos, decision, dto.TierPolicy{
				Aggressiveness: dto.AggressivenessMarketable,
				Timeout:        dto.PolicyFor(model.PriorityCritical).Timeout,
				MaxWalks:       1,
			}, 0, attemptNo, exitQty)
			if err != nil && result == nil {
				return s.persistWalkProgress(pos, walk, err)
			}
			switch result.outcome {
			case model.AttemptFilled:
				return s.settleFill(ctx, pos, decision, result, exitQty)
			case model.AttemptPartialFilled:
				return s.recordPartialExit(ctx, pos, decision, result, walk)
			}
			return s.exhausted(ctx, pos, decision, attemptNo)
		case model.PriorityMedium:
			tier = model.PriorityHigh
			walk = 0
			log.WarnContext(ctx, "Escalating exit to HIGH aggressiveness")
		default:
			tier = model.PriorityMedium
			walk = 0
			log.WarnContext(ctx, "Escalating exit to MEDIUM aggressiveness")
		}
	}
}

// ResumeInFlight re-drives exits for positions left in status closing, e.g.
// after a restart. An exit the engine decided on is never abandoned.
func (s *ExecutionStrategist) ResumeInFlight(ctx context.Context) error {
	positions, err := s.positions.LoadActivePositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active positions: %w", err)
	}

	for i := range positions {
		pos := positions[i]
		if pos.Status != model.StatusClosing || pos.PendingExitReason == nil {
			continue
		}
		decision := dto.ExitDecision{
			Fired:     true,
			Condition: *pos.PendingExitReason,
			Priority:  dto.ConditionPriority(*pos.PendingExitReason),
		}
		s.log.InfoContext(ctx, "Resuming in-flight exit",
			logger.StringField("position_key", pos.PositionKey.String()),
			logger.StringField("condition", string(decision.Condition)))
		if err := s.ExecuteExit(ctx, &pos, decision); err != nil {
			s.log.ErrorContext(ctx, "Failed to resume exit",
				logger.StringField("position_key", pos.PositionKey.String()),
				logger.ErrorField(err))
		}
	}
	return nil
}

// exitQuantity sizes the exit order. A partial-target exit takes only the
// fraction configured on the strategy version; every other condition closes
// the whole position.
func (s *ExecutionStrategist) exitQuantity(ctx context.Context, pos *model.Position, decision dto.ExitDecision) (decimal.Decimal, error) {
	if decision.Condition != model.ExitPartialTarget {
		return pos.Quantity, nil
	}
	rules, err := s.strategies.ResolveStrategyVersion(ctx, pos.StrategyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve strategy %s: %w", pos.StrategyID, err)
	}
	pct := rules.PartialExitQtyPct
	if !pct.IsPositive() || pct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return pos.Quantity, nil
	}
	return pos.Quantity.Mul(pct), nil
}

// settleFill books a filled order: a full-size fill closes the position, a
// partial-target fill books the leg and returns the remainder to monitoring.
func (s *ExecutionStrategist) settleFill(ctx context.Context, pos *model.Position, decision dto.ExitDecision, result *attemptResult, exitQty decimal.Decimal) error {
	if exitQty.LessThan(pos.Quantity) {
		if result.filledQty.IsZero() {
			result.filledQty = exitQty
		}
		return s.recordPartialExit(ctx, pos, decision, result, 0)
	}
	return s.finalizeFullExit(ctx, pos, decision, result)
}

// placeAndWait runs one attempt: price the order, place it, poll for a fill
// until the tier timeout, cancel on expiry. The attempt is logged regardless
// of outcome. A nil result means the attempt could not even be recorded.
func (s *ExecutionStrategist) placeAndWait(
	ctx context.Context,
	pos *model.Position,
	decision dto.ExitDecision,
	policy dto.TierPolicy,
	walk int,
	attemptNo int,
	exitQty decimal.Decimal,
) (*attemptResult, decimal.Decimal, error) {
	quote, err := s.quotes.GetQuote(ctx, pos.InstrumentID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to fetch quote for exit pricing: %w", err)
	}

	price := walkPrice(pos, quote, policy, walk)
	action := exitAction(pos)

	result := &attemptResult{outcome: model.AttemptRejected}
	defer func() {
		s.recordAttempt(pos, decision, policy, attemptNo, price, exitQty, result)
	}()

	if err := s.budget.Wait(ctx, 1); err != nil {
		result.outcome = model.AttemptCancelled
		return result, price, err
	}

	orderID, err := s.orders.PlaceOrder(ctx, dto.OrderRequest{
		InstrumentID: pos.InstrumentID,
		Action:       action,
		Price:        price,
		Quantity:     exitQty,
		TimeoutHint:  policy.Timeout,
	})
	if err != nil {
		s.log.WarnContext(ctx, "Order placement rejected",
			logger.StringField("position_key", pos.PositionKey.String()),
			logger.ErrorField(err))
		result.outcome = model.AttemptRejected
		return result, price, nil
	}
	result.orderID = orderID

	deadline := time.Now().Add(policy.Timeout)
	for {
		select {
		case <-ctx.Done():
			result.outcome = model.AttemptCancelled
			return result, price, ctx.Err()
		case <-time.After(s.cfg.Engine.OrderPollInterval):
		}

		if err := s.budget.Wait(ctx, 1); err != nil {
			result.outcome = model.AttemptCancelled
			return result, price, err
		}

		state, err := s.orders.GetOrderStatus(ctx, orderID)
		if err != nil {
			s.log.WarnContext(ctx, "Order status poll failed",
				logger.StringField("order_id", orderID),
				logger.ErrorField(err))
		} else {
			result.filledQty = state.FilledQty
			result.avgPrice = state.AvgFillPrice
			if state.Filled {
				result.outcome = model.AttemptFilled
				return result, price, nil
			}
		}

		if time.Now().After(deadline) {
			break
		}
	}

	// Timed out unfilled (or partially filled): cancel before re-pricing so
	// there is never more than one live order for this position.
	if err := s.cancelOrder(ctx, orderID); err != nil {
		s.log.ErrorContextWithAlert(ctx, "Failed to cancel timed-out exit order",
			logger.StringField("order_id", orderID),
			logger.ErrorField(err))
	}

	if result.filledQty.IsPositive() {
		result.outcome = model.AttemptPartialFilled
	} else {
		result.outcome = model.AttemptTimeout
	}
	return result, price, nil
}

func (s *ExecutionStrategist) cancelOrder(ctx context.Context, orderID string) error {
	if err := s.budget.Wait(ctx, 1); err != nil {
		return err
	}
	return s.orders.CancelOrder(ctx, orderID)
}

func (s *ExecutionStrategist) recordAttempt(
	pos *model.Position,
	decision dto.ExitDecision,
	policy dto.TierPolicy,
	attemptNo int,
	price decimal.Decimal,
	exitQty decimal.Decimal,
	result *attemptResult,
) {
	// The attempt log must survive even when the surrounding context is
	// cancelled; it is the only audit trail for missed exits.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	attempt := &model.ExitAttempt{
		PositionKey:    pos.PositionKey,
		Condition:      decision.Condition,
		Priority:       decision.Priority.String(),
		AttemptNumber:  attemptNo,
		RequestedPrice: price,
		Quantity:       exitQty,
		TimeoutSeconds: int(policy.Timeout.Seconds()),
		Outcome:        result.outcome,
		OrderID:        result.orderID,
		FilledQuantity: result.filledQty,
		AttemptedAt:    time.Now().UTC(),
	}
	if err := s.attempts.AppendExitAttempt(ctx, attempt); err != nil {
		s.log.Error("Failed to append exit attempt",
			logger.StringField("position_key", pos.PositionKey.String()),
			logger.ErrorField(err))
	}
}

func (s *ExecutionStrategist) finalizeFullExit(ctx context.Context, pos *model.Position, decision dto.ExitDecision, result *attemptResult) error {
	now := time.Now().UTC()
	exitPrice := result.avgPrice
	if exitPrice.IsZero() {
		exitPrice = decision.TriggerPrice
	}
	realized := pos.UnrealizedProfit(exitPrice)

	exit := &model.PositionExit{
		PositionKey: pos.PositionKey,
		StrategyID:  pos.StrategyID,
		Condition:   decision.Condition,
		Priority:    decision.Priority.String(),
		Quantity:    pos.Quantity,
		ExitPrice:   exitPrice,
		RealizedPnL: realized,
		TradeID:     result.orderID,
		ExitedAt:    now,
	}

	pos.Status = model.StatusClosed
	pos.ExitPrice = decimal.NewNullDecimal(exitPrice)
	pos.ExitTime = &now
	pos.ExitReason = &decision.Condition
	pos.ExitPriority = decision.Priority.String()
	pos.RealizedPnL = decimal.NewNullDecimal(realized)
	pos.PendingExitReason = nil
	pos.ExitWalkCount = 0

	if _, err := s.positions.SaveExitUpdate(ctx, pos, exit); err != nil {
		return fmt.Errorf("failed to record exit: %w", err)
	}

	s.log.InfoContext(ctx, "Position exited",
		logger.StringField("position_key", pos.PositionKey.String()),
		logger.StringField("condition", string(decision.Condition)),
		logger.StringField("exit_price", exitPrice.String()),
		logger.StringField("realized_pnl", realized.String()))
	return nil
}

// recordPartialExit books the filled quantity and returns the remainder to
// monitoring. The walk counter carries over rather than resetting, the
// conservative reading of partial-fill handling.
func (s *ExecutionStrategist) recordPartialExit(ctx context.Context, pos *model.Position, decision dto.ExitDecision, result *attemptResult, walk int) error {
	now := time.Now().UTC()
	exitPrice := result.avgPrice
	if exitPrice.IsZero() {
		exitPrice = decision.TriggerPrice
	}

	// Fees are charged once, on the final exit; partial legs book gross P&L.
	var realized decimal.Decimal
	if pos.IsShort() {
		realized = pos.EntryPrice.Sub(exitPrice).Mul(result.filledQty)
	} else {
		realized = exitPrice.Sub(pos.EntryPrice).Mul(result.filledQty)
	}

	exit := &model.PositionExit{
		PositionKey: pos.PositionKey,
		StrategyID:  pos.StrategyID,
		Condition:   decision.Condition,
		Priority:    decision.Priority.String(),
		Quantity:    result.filledQty,
		ExitPrice:   exitPrice,
		RealizedPnL: realized,
		TradeID:     result.orderID,
		ExitedAt:    now,
	}

	pos.Quantity = pos.Quantity.Sub(result.filledQty)
	pos.PartialExitTaken = true
	pos.Status = model.StatusOpen
	pos.ExitWalkCount = walk
	pos.PendingExitReason = nil

	if _, err := s.positions.SaveExitUpdate(ctx, pos, exit); err != nil {
		return fmt.Errorf("failed to record partial exit: %w", err)
	}

	s.log.InfoContext(ctx, "Partial exit recorded, remainder re-enters monitoring",
		logger.StringField("position_key", pos.PositionKey.String()),
		logger.StringField("filled_qty", result.filledQty.String()),
		logger.StringField("remaining_qty", pos.Quantity.String()))
	return nil
}

func (s *ExecutionStrategist) exhausted(ctx context.Context, pos *model.Position, decision dto.ExitDecision, attempts int) error {
	s.log.ErrorContext(ctx, "Exit attempts exhausted",
		logger.StringField("position_key", pos.PositionKey.String()),
		logger.IntField("attempts", attempts))

	alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.alerts.RaiseAlert(alertCtx, common.ALERT_SEVERITY_CRITICAL, common.COMPONENT_EXECUTOR, common.ALERT_EXIT_EXHAUSTED, map[string]interface{}{
		"position_key": pos.PositionKey.String(),
		"instrument":   pos.InstrumentID,
		"condition":    string(decision.Condition),
		"priority":     decision.Priority.String(),
		"attempts":     attempts,
	})

	if err := s.positions.MarkForReview(alertCtx, pos.PositionKey, dto.ErrExitExhausted.Error()); err != nil && !errors.Is(err, dto.ErrPositionNotFound) {
		s.log.Error("Failed to mark exhausted position for review", logger.ErrorField(err))
	}

	// The position stays closing; reverting to open would hide that an exit
	// is overdue.
	return dto.ErrExitExhausted
}

// persistWalkProgress saves the walk counter before bubbling the error so a
// later resume continues where this attempt stopped.
func (s *ExecutionStrategist) persistWalkProgress(pos *model.Position, walk int, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pos.ExitWalkCount = walk
	if _, err := s.positions.SaveMonitorUpdate(ctx, pos); err != nil {
		s.log.Error("Failed to persist walk progress",
			logger.StringField("position_key", pos.PositionKey.String()),
			logger.ErrorField(err))
	}
	return cause
}

// exitAction maps the position side to the order action that closes it.
// Quotes and orders are in yes terms: a yes position sells, a no position
// buys back.
func exitAction(pos *model.Position) dto.OrderAction {
	if pos.IsShort() {
		return dto.OrderBuy
	}
	return dto.OrderSell
}

// walkPrice prices one attempt. The starting point depends on the tier's
// aggressiveness and each walk steps linearly toward the marketable side of
// the book.
func walkPrice(pos *model.Position, quote *dto.Quote, policy dto.TierPolicy, walk int) decimal.Decimal {
	marketable, passive := quote.Bid, quote.Ask
	if pos.IsShort() {
		marketable, passive = quote.Ask, quote.Bid
	}
	if marketable.IsZero() && passive.IsZero() {
		return quote.LastPrice
	}

	start := aggressivenessFraction(policy.Aggressiveness)
	frac := start
	if policy.MaxWalks > 1 {
		remaining := decimal.NewFromInt(int64(policy.MaxWalks - 1 - walk))
		total := decimal.NewFromInt(int64(policy.MaxWalks - 1))
		frac = start.Mul(remaining).Div(total)
	}

	return marketable.Add(passive.Sub(marketable).Mul(frac))
}

// aggressivenessFraction is the distance from the marketable side of the
// spread: 0 crosses immediately, 1 rests at the passive side.
func aggressivenessFraction(a dto.Aggressiveness) decimal.Decimal {
	switch a {
	case dto.AggressivenessMarketable:
		return decimal.Zero
	case dto.AggressivenessAggressive:
		return decimal.NewFromFloat(0.25)
	case dto.AggressivenessFair:
		return decimal.NewFromFloat(0.5)
	default:
		return decimal.NewFromInt(1)
	}
}
