package service

import (
	"context"
	"testing"
	"time"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, store *fakePositionStore, market *fakeMarketData, orders *fakeOrders, strategies *fakeStrategyStore) (*MonitorService, *fakeAlertSink) {
	t.Helper()
	cfg := testConfig()
	log := testLogger()
	alerts := &fakeAlertSink{}
	budget := testBudget()
	quotes := NewQuoteService(cfg, log, testCache(), market, budget)
	evaluator := NewExitEvaluator(cfg, log, strategies)
	executor := NewExecutionStrategist(cfg, log, orders, quotes, store, &fakeAttemptStore{}, strategies, alerts, budget)
	monitor := NewMonitorService(cfg, log, store, quotes, evaluator, NewTrailingStopTracker(), executor, alerts, budget)
	return monitor, alerts
}

func TestCheckPosition_RefreshesLiveFields(t *testing.T) {
	pos := openYesPosition()
	store := newFakePositionStore(pos)
	market := &fakeMarketData{quote: quoteAt("0.43", "0.45")}
	monitor, _ := newTestMonitor(t, store, market, newFakeOrders(), &fakeStrategyStore{})

	require.NoError(t, monitor.checkPosition(context.Background(), pos))

	current := store.current(pos.PositionKey)
	assert.Equal(t, model.StatusOpen, current.Status)
	require.True(t, current.CurrentPrice.Valid)
	assert.True(t, current.CurrentPrice.Decimal.Equal(d("0.44")))
	require.True(t, current.UnrealizedPnL.Valid)
	// (0.44 - 0.40) * 100 = 4
	assert.True(t, current.UnrealizedPnL.Decimal.Equal(d("4")))
	assert.NotNil(t, current.LastCheckedAt)
	assert.Zero(t, current.StaleChecks)
}

func TestCheckPosition_FiredDecisionRunsExit(t *testing.T) {
	pos := openYesPosition()
	store := newFakePositionStore(pos)
	market := &fakeMarketData{quote: quoteAt("0.28", "0.30")}
	orders := newFakeOrders(orderScript{fillAfter: 0, filledQty: d("100"), avgPrice: d("0.29")})
	monitor, _ := newTestMonitor(t, store, market, orders, &fakeStrategyStore{})

	require.NoError(t, monitor.checkPosition(context.Background(), pos))

	current := store.current(pos.PositionKey)
	assert.Equal(t, model.StatusClosed, current.Status)
	require.NotNil(t, current.ExitReason)
	assert.Equal(t, model.ExitStopLoss, *current.ExitReason)
	require.Len(t, orders.placed, 1)
}

func TestCheckPosition_StaleDataAlertsAtThreshold(t *testing.T) {
	pos := openYesPosition()
	pos.StaleChecks = 2
	store := newFakePositionStore(pos)
	market := &fakeMarketData{quoteErr: assert.AnError}
	monitor, alerts := newTestMonitor(t, store, market, newFakeOrders(), &fakeStrategyStore{})

	require.NoError(t, monitor.checkPosition(context.Background(), pos))

	current := store.current(pos.PositionKey)
	assert.Equal(t, 3, current.StaleChecks)
	assert.True(t, current.MarkedForReview)
	assert.Equal(t, dto.ErrStaleData.Error(), current.ReviewReason)
	// No evaluation happened: the position stays open and unexited.
	assert.Equal(t, model.StatusOpen, current.Status)

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, common.ALERT_SEVERITY_HIGH, alerts.alerts[0].severity)
	assert.Equal(t, common.ALERT_STALE_DATA, alerts.alerts[0].message)
	assert.Equal(t, common.COMPONENT_MONITOR, alerts.alerts[0].component)
}

func TestCheckPosition_StaleBelowThresholdStaysQuiet(t *testing.T) {
	pos := openYesPosition()
	store := newFakePositionStore(pos)
	market := &fakeMarketData{quoteErr: assert.AnError}
	monitor, alerts := newTestMonitor(t, store, market, newFakeOrders(), &fakeStrategyStore{})

	require.NoError(t, monitor.checkPosition(context.Background(), pos))

	current := store.current(pos.PositionKey)
	assert.Equal(t, 1, current.StaleChecks)
	assert.False(t, current.MarkedForReview)
	assert.Empty(t, alerts.alerts)
}

func TestComputeUrgency(t *testing.T) {
	monitor, _ := newTestMonitor(t, newFakePositionStore(), &fakeMarketData{}, newFakeOrders(), &fakeStrategyStore{})
	now := time.Now()

	t.Run("near stop loss", func(t *testing.T) {
		pos := openYesPosition()
		// 0.305 vs stop 0.30: within the 2% margin.
		assert.True(t, monitor.computeUrgency(pos, d("0.305"), now))
	})

	t.Run("near target", func(t *testing.T) {
		pos := openYesPosition()
		assert.True(t, monitor.computeUrgency(pos, d("0.595"), now))
	})

	t.Run("near active trailing stop", func(t *testing.T) {
		pos := openYesPosition()
		pos.Trailing = model.TrailingStopState{IsActive: true, CurrentStopPrice: d("0.45")}
		assert.True(t, monitor.computeUrgency(pos, d("0.455"), now))
	})

	t.Run("far from every threshold", func(t *testing.T) {
		pos := openYesPosition()
		assert.False(t, monitor.computeUrgency(pos, d("0.45"), now))
	})

	t.Run("event close inside urgent window", func(t *testing.T) {
		pos := openYesPosition()
		pos.EventCloseTime = now.Add(30 * time.Minute)
		assert.True(t, monitor.computeUrgency(pos, d("0.45"), now))
	})
}

func TestSelectDue_UrgentFirstAndClaimed(t *testing.T) {
	urgentPos := openYesPosition()
	urgentPos.Urgent = true
	normalPos := openYesPosition()
	closingPos := openYesPosition()
	closingPos.Status = model.StatusClosing

	monitor, _ := newTestMonitor(t, newFakePositionStore(), &fakeMarketData{}, newFakeOrders(), &fakeStrategyStore{})
	now := time.Now()

	due := monitor.selectDue([]model.Position{*normalPos, *closingPos, *urgentPos}, now)
	require.Len(t, due, 2, "closing positions are not scheduled")
	assert.Equal(t, urgentPos.PositionKey, due[0].PositionKey, "urgent positions go first")
	assert.Equal(t, normalPos.PositionKey, due[1].PositionKey)

	// Claimed positions are skipped until released.
	again := monitor.selectDue([]model.Position{*normalPos, *urgentPos}, now)
	assert.Empty(t, again)

	monitor.release(urgentPos.PositionKey)
	monitor.release(normalPos.PositionKey)

	// Released but not yet due: the next slot is in the future.
	monitor.schedule(urgentPos.PositionKey, true, now)
	notDue := monitor.selectDue([]model.Position{*urgentPos}, now.Add(time.Second))
	assert.Empty(t, notDue)

	// Past the urgent interval it is due again.
	dueAgain := monitor.selectDue([]model.Position{*urgentPos}, now.Add(6*time.Second))
	assert.Len(t, dueAgain, 1)
}

func TestStatusSnapshot(t *testing.T) {
	urgentPos := openYesPosition()
	urgentPos.Urgent = true
	normalPos := openYesPosition()

	monitor, _ := newTestMonitor(t, newFakePositionStore(), &fakeMarketData{}, newFakeOrders(), &fakeStrategyStore{})
	monitor.selectDue([]model.Position{*urgentPos, *normalPos}, time.Now())

	status := monitor.Status()
	assert.Equal(t, 2, status.ActivePositions)
	assert.Equal(t, 1, status.UrgentPositions)
	assert.Equal(t, status.BudgetCapacity, 600)
	assert.LessOrEqual(t, status.BudgetRemaining, status.BudgetCapacity)
}

func TestForceCheck_UnknownPosition(t *testing.T) {
	monitor, _ := newTestMonitor(t, newFakePositionStore(), &fakeMarketData{}, newFakeOrders(), &fakeStrategyStore{})
	pos := openYesPosition()
	err := monitor.ForceCheck(context.Background(), pos.PositionKey)
	require.Error(t, err)
}
