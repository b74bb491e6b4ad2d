package repository

import (
	"prediction-trading/config"
	"prediction-trading/pkg/cache"
	"prediction-trading/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	PositionsRepo        PositionsRepository
	PositionExitsRepo    PositionExitsRepository
	ExitAttemptsRepo     ExitAttemptsRepository
	StrategyVersionsRepo StrategyVersionsRepository
	ExchangeRepo         ExchangeRepository
	UnitOfWork           UnitOfWork
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	return &Repository{
		PositionsRepo:        NewPositionsRepository(db),
		PositionExitsRepo:    NewPositionExitsRepository(db),
		ExitAttemptsRepo:     NewExitAttemptsRepository(db),
		StrategyVersionsRepo: NewStrategyVersionsRepository(db, inmemoryCache),
		ExchangeRepo:         NewExchangeRepository(cfg, log),
		UnitOfWork:           NewUnitOfWork(db),
	}, nil
}
