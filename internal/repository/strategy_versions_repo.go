package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/cache"
	"prediction-trading/pkg/common"
	"prediction-trading/pkg/utils"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StrategyVersionsRepository interface {
	Create(ctx context.Context, version *model.StrategyVersion) error
	FindByVersionID(ctx context.Context, versionID string) (*model.StrategyVersion, error)
	ResolveStrategyVersion(ctx context.Context, versionID string) (*model.ExitRules, error)
	UpdateStatus(ctx context.Context, versionID string, status model.StrategyStatus) error
	SaveRules(ctx context.Context, versionID string, rules model.ExitRules) error
	AddPerformance(ctx context.Context, versionID string, exits, wins int, pnl decimal.Decimal, opts ...utils.DBOption) error
}

type strategyVersionsRepository struct {
	db            *gorm.DB
	inmemoryCache cache.Cache
}

func NewStrategyVersionsRepository(db *gorm.DB, inmemoryCache cache.Cache) StrategyVersionsRepository {
	return &strategyVersionsRepository{
		db:            db,
		inmemoryCache: inmemoryCache,
	}
}

func (r *strategyVersionsRepository) Create(ctx context.Context, version *model.StrategyVersion) error {
	if version.Status == "" {
		version.Status = model.StrategyDraft
	}
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *strategyVersionsRepository) FindByVersionID(ctx context.Context, versionID string) (*model.StrategyVersion, error) {
	var version model.StrategyVersion
	err := r.db.WithContext(ctx).Where("version_id = ?", versionID).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dto.ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// ResolveStrategyVersion returns the immutable exit rules for a version id.
// Versions never change once created, so resolved rules are cached without
// expiry.
func (r *strategyVersionsRepository) ResolveStrategyVersion(ctx context.Context, versionID string) (*model.ExitRules, error) {
	key := fmt.Sprintf(common.KEY_STRATEGY_VERSION, versionID)
	if rules, found := cache.GetTyped[*model.ExitRules](r.inmemoryCache, key); found {
		return rules, nil
	}

	version, err := r.FindByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	rules := version.Rules.Data()
	r.inmemoryCache.Set(key, &rules, gocacheNoExpiration)
	return &rules, nil
}

func (r *strategyVersionsRepository) UpdateStatus(ctx context.Context, versionID string, status model.StrategyStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.StrategyVersion{}).
		Where("version_id = ?", versionID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return dto.ErrStrategyNotFound
	}
	return nil
}

// SaveRules exists to make the immutability contract explicit: the rule
// payload of an existing version can never change. A new version id is the
// only way to change rules.
func (r *strategyVersionsRepository) SaveRules(ctx context.Context, versionID string, rules model.ExitRules) error {
	if _, err := r.FindByVersionID(ctx, versionID); err != nil {
		return err
	}
	return fmt.Errorf("cannot update rules of version %s: %w", versionID, dto.ErrImmutableStrategy)
}

func (r *strategyVersionsRepository) AddPerformance(ctx context.Context, versionID string, exits, wins int, pnl decimal.Decimal, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.StrategyVersion{}).
		Where("version_id = ?", versionID).
		Updates(map[string]interface{}{
			"total_exits":        gorm.Expr("total_exits + ?", exits),
			"winning_exits":      gorm.Expr("winning_exits + ?", wins),
			"total_realized_pnl": gorm.Expr("total_realized_pnl + ?", pnl),
			"last_rollup_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return dto.ErrStrategyNotFound
	}
	return nil
}

// gocacheNoExpiration mirrors go-cache's NoExpiration sentinel.
const gocacheNoExpiration = -1
