package service

import (
	"context"
	"sync"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/common"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/ratelimit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// MonitorService is the scheduling core: it sweeps active positions on a
// fixed tick, checks urgent positions on the fast cadence and the rest on the
// normal one, and hands fired exit decisions to the execution strategist.
type MonitorService struct {
	cfg       *config.Config
	log       *logger.Logger
	positions contract.PositionStore
	quotes    *QuoteService
	evaluator *ExitEvaluator
	trailing  *TrailingStopTracker
	executor  *ExecutionStrategist
	alerts    contract.AlertSink
	budget    *ratelimit.TokenLimiter

	mu        sync.Mutex
	nextCheck map[uuid.UUID]time.Time
	inFlight  map[uuid.UUID]struct{}
	active    int
	urgent    int
}

func NewMonitorService(
	cfg *config.Config,
	log *logger.Logger,
	positions contract.PositionStore,
	quotes *QuoteService,
	evaluator *ExitEvaluator,
	trailing *TrailingStopTracker,
	executor *ExecutionStrategist,
	alerts contract.AlertSink,
	budget *ratelimit.TokenLimiter,
) *MonitorService {
	return &MonitorService{
		cfg:       cfg,
		log:       log,
		positions: positions,
		quotes:    quotes,
		evaluator: evaluator,
		trailing:  trailing,
		executor:  executor,
		alerts:    alerts,
		budget:    budget,
		nextCheck: make(map[uuid.UUID]time.Time),
		inFlight:  make(map[uuid.UUID]struct{}),
	}
}

// Run blocks until ctx is cancelled. It first resumes any exit left in flight
// by a previous run, then enters the tick loop.
func (s *MonitorService) Run(ctx context.Context) error {
	if err := s.executor.ResumeInFlight(ctx); err != nil {
		s.log.ErrorContext(ctx, "Startup exit resume failed", logger.ErrorField(err))
	}

	ticker := time.NewTicker(s.cfg.Engine.TickInterval)
	defer ticker.Stop()

	s.log.InfoContext(ctx, "Position monitor started",
		logger.Field("normal_interval", s.cfg.Engine.NormalCheckInterval.String()),
		logger.Field("urgent_interval", s.cfg.Engine.UrgentCheckInterval.String()))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Position monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
				s.log.ErrorContext(ctx, "Monitor cycle failed", logger.ErrorField(err))
			}
		}
	}
}

// runCycle checks every position that is due, urgent ones first so they drain
// the shared call budget before routine checks do.
func (s *MonitorService) runCycle(ctx context.Context) error {
	positions, err := s.positions.LoadActivePositions(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	due := s.selectDue(positions, now)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Engine.MaxConcurrency)
	for i := range due {
		pos := due[i]
		g.Go(func() error {
			defer s.release(pos.PositionKey)
			if err := s.checkPosition(gctx, &pos); err != nil && gctx.Err() == nil {
				s.log.ErrorContext(gctx, "Position check failed",
					logger.StringField("position_key", pos.PositionKey.String()),
					logger.ErrorField(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// selectDue picks the positions whose check interval has elapsed and claims
// them against concurrent cycles. Urgent positions sort ahead of normal ones.
func (s *MonitorService) selectDue(positions []model.Position, now time.Time) []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = len(positions)
	s.urgent = 0

	var urgentDue, normalDue []model.Position
	seen := make(map[uuid.UUID]struct{}, len(positions))
	for i := range positions {
		pos := positions[i]
		seen[pos.PositionKey] = struct{}{}
		if pos.Urgent {
			s.urgent++
		}
		if pos.Status != model.StatusOpen {
			continue
		}
		if _, busy := s.inFlight[pos.PositionKey]; busy {
			continue
		}
		if next, ok := s.nextCheck[pos.PositionKey]; ok && now.Before(next) {
			continue
		}
		s.inFlight[pos.PositionKey] = struct{}{}
		if pos.Urgent {
			urgentDue = append(urgentDue, pos)
		} else {
			normalDue = append(normalDue, pos)
		}
	}

	// Drop schedule state for positions that left the active set.
	for key := range s.nextCheck {
		if _, ok := seen[key]; !ok {
			delete(s.nextCheck, key)
		}
	}

	return append(urgentDue, normalDue...)
}

func (s *MonitorService) release(key uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func (s *MonitorService) schedule(key uuid.UUID, urgent bool, now time.Time) {
	interval := s.cfg.Engine.NormalCheckInterval
	if urgent {
		interval = s.cfg.Engine.UrgentCheckInterval
	}
	s.mu.Lock()
	s.nextCheck[key] = now.Add(interval)
	s.mu.Unlock()
}

// checkPosition runs one monitoring pass: refresh market data, advance the
// trailing stop, evaluate exit conditions, then either execute the exit or
// persist the refreshed live fields.
func (s *MonitorService) checkPosition(ctx context.Context, pos *model.Position) error {
	now := time.Now().UTC()
	defer func() {
		s.schedule(pos.PositionKey, pos.Urgent, now)
	}()

	quote, err := s.quotes.GetQuote(ctx, pos.InstrumentID)
	if err != nil {
		return s.handleStaleCheck(ctx, pos, now, err)
	}

	price := quote.Mid()
	if price.IsZero() {
		price = quote.LastPrice
	}

	pos.StaleChecks = 0
	pos.CurrentPrice = decimal.NewNullDecimal(price)
	pos.UnrealizedPnL = decimal.NewNullDecimal(pos.UnrealizedProfit(price))
	pos.LastCheckedAt = &now

	if state, changed := s.trailing.Observe(pos, price, now); changed {
		pos.Trailing = state
	}

	// Liquidity is best effort: the dried-up condition simply stays quiet
	// when depth data is unavailable.
	liq, err := s.quotes.GetLiquidity(ctx, pos.InstrumentID)
	if err != nil {
		s.log.DebugContext(ctx, "Liquidity unavailable",
			logger.StringField("instrument", pos.InstrumentID),
			logger.ErrorField(err))
		liq = nil
	}

	decision, err := s.evaluator.Evaluate(ctx, pos, quote, liq, now)
	if err != nil {
		return err
	}

	pos.Urgent = s.computeUrgency(pos, price, now)

	if decision.Fired {
		s.log.InfoContext(ctx, "Exit condition fired",
			logger.StringField("position_key", pos.PositionKey.String()),
			logger.StringField("condition", string(decision.Condition)),
			logger.StringField("priority", decision.Priority.String()),
			logger.StringField("trigger_price", decision.TriggerPrice.String()))
		return s.executor.ExecuteExit(ctx, pos, decision)
	}

	_, err = s.positions.SaveMonitorUpdate(ctx, pos)
	return err
}

// handleStaleCheck counts consecutive failed refreshes. Evaluation is skipped
// on stale data so the engine never fires an exit off a price it cannot trust;
// past the threshold the position is flagged and operations alerted.
func (s *MonitorService) handleStaleCheck(ctx context.Context, pos *model.Position, now time.Time, cause error) error {
	pos.StaleChecks++
	pos.LastCheckedAt = &now

	s.log.WarnContext(ctx, "Quote refresh failed, skipping evaluation",
		logger.StringField("position_key", pos.PositionKey.String()),
		logger.IntField("stale_checks", pos.StaleChecks),
		logger.ErrorField(cause))

	if pos.StaleChecks == s.cfg.Engine.StaleChecksForAlert {
		_ = s.alerts.RaiseAlert(ctx, common.ALERT_SEVERITY_HIGH, common.COMPONENT_MONITOR, common.ALERT_STALE_DATA, map[string]interface{}{
			"position_key": pos.PositionKey.String(),
			"instrument":   pos.InstrumentID,
			"stale_checks": pos.StaleChecks,
		})
		pos.MarkedForReview = true
		pos.ReviewReason = dto.ErrStaleData.Error()
	}

	_, err := s.positions.SaveMonitorUpdate(ctx, pos)
	return err
}

// computeUrgency promotes a position to the fast check cadence when the price
// sits within the configured margin of a protective threshold, or when the
// underlying event is about to close.
func (s *MonitorService) computeUrgency(pos *model.Position, price decimal.Decimal, now time.Time) bool {
	if !now.Before(pos.EventCloseTime.Add(-s.cfg.Engine.TimeUrgentWindow)) {
		return true
	}
	if price.IsZero() {
		return pos.Urgent
	}

	margin := decimal.NewFromFloat(s.cfg.Engine.UrgencyMarginPct)
	thresholds := []decimal.Decimal{pos.StopLossPrice, pos.TargetPrice}
	if pos.Trailing.IsActive {
		thresholds = append(thresholds, pos.Trailing.CurrentStopPrice)
	}
	for _, t := range thresholds {
		if t.IsZero() {
			continue
		}
		if price.Sub(t).Abs().Div(price).LessThanOrEqual(margin) {
			return true
		}
	}
	return false
}

// ForceCheck performs an immediate out-of-band check of a single position,
// regardless of its scheduled slot.
func (s *MonitorService) ForceCheck(ctx context.Context, key uuid.UUID) error {
	pos, err := s.positions.FindCurrentByKey(ctx, key)
	if err != nil {
		return err
	}
	if pos.Status != model.StatusOpen {
		return dto.ErrPositionOwned
	}

	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		return dto.ErrPositionOwned
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()
	defer s.release(key)

	return s.checkPosition(ctx, pos)
}

// Status reports a snapshot of the engine for the ops API.
func (s *MonitorService) Status() dto.EngineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dto.EngineStatus{
		ActivePositions: s.active,
		UrgentPositions: s.urgent,
		BudgetRemaining: s.budget.GetRemaining(),
		BudgetCapacity:  s.budget.Capacity(),
	}
}
