package service

import (
	"context"
	"sync"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/cache"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/ratelimit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.Engine{
			TickInterval:        time.Second,
			NormalCheckInterval: 30 * time.Second,
			UrgentCheckInterval: 5 * time.Second,
			UrgencyMarginPct:    0.02,
			CallBudgetPerMin:    60,
			MaxConcurrency:      4,
			QuoteTTL:            10 * time.Second,
			FetchMaxRetries:     0,
			FetchRetryBackoff:   time.Millisecond,
			StaleChecksForAlert: 3,
			TimeUrgentWindow:    time.Hour,
			OrderPollInterval:   time.Millisecond,
		},
	}
}

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func testCache() cache.Cache {
	return cache.NewCache(time.Minute, time.Minute)
}

func testBudget() *ratelimit.TokenLimiter {
	return ratelimit.NewTokenLimiter(600)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// openYesPosition is a baseline long position with thresholds far enough
// apart that no condition fires at the entry price.
func openYesPosition() *model.Position {
	return &model.Position{
		PositionKey:      uuid.New(),
		IsCurrent:        true,
		InstrumentID:     "MKT-FED-DEC",
		Side:             model.SideYes,
		Status:           model.StatusOpen,
		EntryPrice:       d("0.40"),
		Quantity:         d("100"),
		TargetPrice:      d("0.60"),
		StopLossPrice:    d("0.30"),
		StrategyID:       "strat-v1",
		ModelVersionID:   "model-v1",
		EntryProbability: d("0.48"),
		EntryEdge:        d("0.08"),
		EntryMarketPrice: d("0.40"),
		EventCloseTime:   time.Now().Add(72 * time.Hour),
	}
}

func openNoPosition() *model.Position {
	pos := openYesPosition()
	pos.Side = model.SideNo
	pos.StopLossPrice = d("0.55")
	pos.TargetPrice = d("0.25")
	pos.EntryProbability = d("0.34")
	return pos
}

func quoteAt(bid, ask string) *dto.Quote {
	return &dto.Quote{
		InstrumentID: "MKT-FED-DEC",
		Bid:          d(bid),
		Ask:          d(ask),
		LastPrice:    d(bid),
		Timestamp:    time.Now(),
	}
}

type fakeStrategyStore struct {
	rules    *model.ExitRules
	err      error
	resolved []string
}

func (f *fakeStrategyStore) ResolveStrategyVersion(ctx context.Context, versionID string) (*model.ExitRules, error) {
	f.resolved = append(f.resolved, versionID)
	if f.err != nil {
		return nil, f.err
	}
	if f.rules != nil {
		return f.rules, nil
	}
	return &model.ExitRules{ExitRulesVersion: "exit-v1"}, nil
}

type fakeMarketData struct {
	mu       sync.Mutex
	quote    *dto.Quote
	liq      *dto.Liquidity
	quoteErr error
	liqErr   error
	fetches  int
}

func (f *fakeMarketData) GetQuote(ctx context.Context, instrumentID string) (*dto.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeMarketData) GetLiquidity(ctx context.Context, instrumentID string) (*dto.Liquidity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liqErr != nil {
		return nil, f.liqErr
	}
	if f.liq == nil {
		return &dto.Liquidity{InstrumentID: instrumentID, Spread: d("0.01"), Depth: d("10000")}, nil
	}
	return f.liq, nil
}

type fakePositionStore struct {
	mu        sync.Mutex
	positions map[uuid.UUID]*model.Position
	exits     []model.PositionExit
	saves     int
}

func newFakePositionStore(positions ...*model.Position) *fakePositionStore {
	store := &fakePositionStore{positions: make(map[uuid.UUID]*model.Position)}
	for _, pos := range positions {
		cp := *pos
		store.positions[pos.PositionKey] = &cp
	}
	return store
}

func (f *fakePositionStore) LoadActivePositions(ctx context.Context) ([]model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Position
	for _, pos := range f.positions {
		if pos.Status == model.StatusOpen || pos.Status == model.StatusClosing {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (f *fakePositionStore) FindCurrentByKey(ctx context.Context, key uuid.UUID) (*model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[key]
	if !ok {
		return nil, dto.ErrPositionNotFound
	}
	cp := *pos
	return &cp, nil
}

func (f *fakePositionStore) SaveMonitorUpdate(ctx context.Context, pos *model.Position) (*model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	cp := *pos
	f.positions[pos.PositionKey] = &cp
	out := cp
	return &out, nil
}

func (f *fakePositionStore) SaveExitUpdate(ctx context.Context, pos *model.Position, exit *model.PositionExit) (*model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	cp := *pos
	f.positions[pos.PositionKey] = &cp
	if exit != nil {
		f.exits = append(f.exits, *exit)
	}
	out := cp
	return &out, nil
}

func (f *fakePositionStore) MarkForReview(ctx context.Context, key uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[key]
	if !ok {
		return dto.ErrPositionNotFound
	}
	pos.MarkedForReview = true
	pos.ReviewReason = reason
	return nil
}

func (f *fakePositionStore) current(key uuid.UUID) model.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.positions[key]
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []model.ExitAttempt
}

func (f *fakeAttemptStore) AppendExitAttempt(ctx context.Context, attempt *model.ExitAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

type raisedAlert struct {
	severity  string
	component string
	message   string
	details   map[string]interface{}
}

type fakeAlertSink struct {
	mu     sync.Mutex
	alerts []raisedAlert
}

func (f *fakeAlertSink) RaiseAlert(ctx context.Context, severity, component, message string, details map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, raisedAlert{severity: severity, component: component, message: message, details: details})
	return nil
}

// fakeOrders scripts order behavior per placement: each placed order follows
// the next entry in the script.
type orderScript struct {
	placeErr  error
	fillAfter int // status polls before reporting filled
	filledQty decimal.Decimal
	avgPrice  decimal.Decimal
}

type fakeOrders struct {
	mu      sync.Mutex
	script  []orderScript
	placed  []dto.OrderRequest
	polls   map[string]int
	cancels []string
}

func newFakeOrders(script ...orderScript) *fakeOrders {
	return &fakeOrders{script: script, polls: make(map[string]int)}
}

func (f *fakeOrders) PlaceOrder(ctx context.Context, req dto.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.placed)
	if idx < len(f.script) && f.script[idx].placeErr != nil {
		f.placed = append(f.placed, req)
		return "", f.script[idx].placeErr
	}
	f.placed = append(f.placed, req)
	return uuid.NewString(), nil
}

func (f *fakeOrders) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeOrders) GetOrderStatus(ctx context.Context, orderID string) (*dto.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[orderID]++
	idx := len(f.placed) - 1
	var entry orderScript
	if idx >= 0 && idx < len(f.script) {
		entry = f.script[idx]
	}
	state := &dto.OrderState{OrderID: orderID, FilledQty: entry.filledQty, AvgFillPrice: entry.avgPrice}
	if f.polls[orderID] > entry.fillAfter {
		state.Filled = true
	}
	return state, nil
}

var (
	_ contract.MarketDataProvider     = (*fakeMarketData)(nil)
	_ contract.OrderExecutionProvider = (*fakeOrders)(nil)
	_ contract.PositionStore          = (*fakePositionStore)(nil)
	_ contract.ExitAttemptStore       = (*fakeAttemptStore)(nil)
	_ contract.AlertSink              = (*fakeAlertSink)(nil)
	_ contract.StrategyStore          = (*fakeStrategyStore)(nil)
)
