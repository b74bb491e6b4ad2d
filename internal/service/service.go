package service

import (
	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/repository"
	"prediction-trading/pkg/cache"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/ratelimit"
)

// Service aggregates the engine services. One TokenLimiter instance backs
// both monitoring quote fetches and execution order calls, so the two sides
// compete for the same external call budget.
type Service struct {
	Quotes      *QuoteService
	Evaluator   *ExitEvaluator
	Trailing    *TrailingStopTracker
	Executor    *ExecutionStrategist
	Monitor     *MonitorService
	Maintenance *MaintenanceService
	Budget      *ratelimit.TokenLimiter
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	inmemoryCache cache.Cache,
	repo *repository.Repository,
	alerts contract.AlertSink,
) *Service {
	budget := ratelimit.NewTokenLimiter(cfg.Engine.CallBudgetPerMin)

	quotes := NewQuoteService(cfg, log, inmemoryCache, repo.ExchangeRepo, budget)
	trailing := NewTrailingStopTracker()
	evaluator := NewExitEvaluator(cfg, log, repo.StrategyVersionsRepo)
	executor := NewExecutionStrategist(cfg, log, repo.ExchangeRepo, quotes, repo.PositionsRepo, repo.ExitAttemptsRepo, repo.StrategyVersionsRepo, alerts, budget)
	monitor := NewMonitorService(cfg, log, repo.PositionsRepo, quotes, evaluator, trailing, executor, alerts, budget)
	maintenance := NewMaintenanceService(cfg, log, repo, executor, alerts)

	return &Service{
		Quotes:      quotes,
		Evaluator:   evaluator,
		Trailing:    trailing,
		Executor:    executor,
		Monitor:     monitor,
		Maintenance: maintenance,
		Budget:      budget,
	}
}
