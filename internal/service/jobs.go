package service

import (
	"context"
	"time"

	"prediction-trading/config"
	"prediction-trading/internal/contract"
	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/internal/repository"
	"prediction-trading/pkg/common"
	"prediction-trading/pkg/logger"
	"prediction-trading/pkg/utils"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const rollupBatchSize = 500

// MaintenanceService owns the background cron jobs: store reconciliation and
// strategy performance rollup.
type MaintenanceService struct {
	cfg      *config.Config
	log      *logger.Logger
	repo     *repository.Repository
	executor *ExecutionStrategist
	alerts   contract.AlertSink
	cron     *cron.Cron
}

func NewMaintenanceService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	executor *ExecutionStrategist,
	alerts contract.AlertSink,
) *MaintenanceService {
	return &MaintenanceService{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		executor: executor,
		alerts:   alerts,
		cron:     cron.New(),
	}
}

func (s *MaintenanceService) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Jobs.ReconcileSchedule, func() {
		utils.GoSafe(func() {
			if err := s.Reconcile(ctx); err != nil {
				s.log.ErrorContext(ctx, "Reconcile job failed", logger.ErrorField(err))
			}
		})
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.cfg.Jobs.RollupSchedule, func() {
		utils.GoSafe(func() {
			if err := s.RollupPerformance(ctx); err != nil {
				s.log.ErrorContext(ctx, "Performance rollup job failed", logger.ErrorField(err))
			}
		})
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.cfg.Jobs.SettleSchedule, func() {
		utils.GoSafe(func() {
			if err := s.SettleClosedEvents(ctx, time.Now().UTC()); err != nil {
				s.log.ErrorContext(ctx, "Settlement job failed", logger.ErrorField(err))
			}
		})
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Maintenance jobs scheduled",
		logger.StringField("reconcile", s.cfg.Jobs.ReconcileSchedule),
		logger.StringField("rollup", s.cfg.Jobs.RollupSchedule),
		logger.StringField("settle", s.cfg.Jobs.SettleSchedule))
	return nil
}

func (s *MaintenanceService) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn("Maintenance jobs did not drain before shutdown deadline")
	}
}

// Reconcile audits the position store. It resumes exits left in flight and
// checks the single-current-row invariant; a violation here means a
// supersede raced or was half-applied, which needs a human.
func (s *MaintenanceService) Reconcile(ctx context.Context) error {
	if err := s.executor.ResumeInFlight(ctx); err != nil {
		s.log.ErrorContext(ctx, "Exit resume during reconcile failed", logger.ErrorField(err))
	}

	keys, err := s.repo.PositionsRepo.FindDuplicateCurrentKeys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		s.log.ErrorContext(ctx, "Position has multiple current rows",
			logger.StringField("position_key", key.String()))
		_ = s.alerts.RaiseAlert(ctx, common.ALERT_SEVERITY_CRITICAL, common.COMPONENT_RECONCILE, common.ALERT_INVARIANT_VIOLATION, map[string]interface{}{
			"position_key": key.String(),
			"detail":       "multiple current rows for one position key",
		})
		if err := s.repo.PositionsRepo.MarkForReview(ctx, key, common.ALERT_INVARIANT_VIOLATION); err != nil {
			s.log.ErrorContext(ctx, "Failed to flag duplicated position",
				logger.StringField("position_key", key.String()),
				logger.ErrorField(err))
		}
	}

	s.log.InfoContext(ctx, "Reconcile pass finished",
		logger.IntField("duplicate_keys", len(keys)))
	return nil
}

// RollupPerformance folds unprocessed exit records into per-strategy
// aggregates. Each batch marks its rows and bumps the counters in one
// transaction, so a rerun after a crash never double counts.
func (s *MaintenanceService) RollupPerformance(ctx context.Context) error {
	for {
		exits, err := s.repo.PositionExitsRepo.ListUnrolled(ctx, rollupBatchSize)
		if err != nil {
			return err
		}
		if len(exits) == 0 {
			return nil
		}

		type agg struct {
			exits int
			wins  int
			pnl   decimal.Decimal
		}
		byStrategy := make(map[string]*agg)
		ids := make([]uint, 0, len(exits))
		for _, e := range exits {
			a, ok := byStrategy[e.StrategyID]
			if !ok {
				a = &agg{}
				byStrategy[e.StrategyID] = a
			}
			a.exits++
			if e.RealizedPnL.IsPositive() {
				a.wins++
			}
			a.pnl = a.pnl.Add(e.RealizedPnL)
			ids = append(ids, e.ID)
		}

		err = s.repo.UnitOfWork.Run(func(opts ...utils.DBOption) error {
			for strategyID, a := range byStrategy {
				if err := s.repo.StrategyVersionsRepo.AddPerformance(ctx, strategyID, a.exits, a.wins, a.pnl, opts...); err != nil {
					return err
				}
			}
			return s.repo.PositionExitsRepo.MarkRolledUp(ctx, ids, opts...)
		})
		if err != nil {
			return err
		}

		s.log.InfoContext(ctx, "Rolled up exit performance",
			logger.IntField("exits", len(exits)),
			logger.IntField("strategies", len(byStrategy)))

		if len(exits) < rollupBatchSize {
			return nil
		}
	}
}

// SettleClosedEvents marks closed positions of expired events as settled once
// their event close time has passed. Settlement proceeds come from the
// exchange, not the engine, so this only advances the lifecycle state.
func (s *MaintenanceService) SettleClosedEvents(ctx context.Context, now time.Time) error {
	positions, err := s.repo.PositionsRepo.Get(ctx, dto.GetPositionsParam{
		Statuses:    []model.PositionStatus{model.StatusClosed},
		CurrentOnly: true,
	})
	if err != nil {
		return err
	}
	for i := range positions {
		pos := positions[i]
		if pos.Status != model.StatusClosed || now.Before(pos.EventCloseTime) {
			continue
		}
		pos.Status = model.StatusSettled
		if _, err := s.repo.PositionsRepo.SaveMonitorUpdate(ctx, &pos); err != nil {
			s.log.ErrorContext(ctx, "Failed to settle position",
				logger.StringField("position_key", pos.PositionKey.String()),
				logger.ErrorField(err))
		}
	}
	return nil
}
