package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PositionsRepository interface {
	Get(ctx context.Context, param dto.GetPositionsParam) ([]model.Position, error)
	Create(ctx context.Context, pos *model.Position, opts ...utils.DBOption) error
	LoadActivePositions(ctx context.Context) ([]model.Position, error)
	FindCurrentByKey(ctx context.Context, key uuid.UUID) (*model.Position, error)
	SaveMonitorUpdate(ctx context.Context, pos *model.Position) (*model.Position, error)
	SaveExitUpdate(ctx context.Context, pos *model.Position, exit *model.PositionExit) (*model.Position, error)
	MarkForReview(ctx context.Context, key uuid.UUID, reason string) error
	FindDuplicateCurrentKeys(ctx context.Context) ([]uuid.UUID, error)
}

type positionsRepository struct {
	db  *gorm.DB
	uow UnitOfWork
}

func NewPositionsRepository(db *gorm.DB) PositionsRepository {
	return &positionsRepository{
		db:  db,
		uow: NewUnitOfWork(db),
	}
}

func (r *positionsRepository) Get(ctx context.Context, param dto.GetPositionsParam) ([]model.Position, error) {
	var positions []model.Position

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if len(param.IDs) > 0 {
		qFilter = append(qFilter, "id IN (?)")
		qFilterParam = append(qFilterParam, param.IDs)
	}

	if len(param.PositionKeys) > 0 {
		qFilter = append(qFilter, "position_key IN (?)")
		qFilterParam = append(qFilterParam, param.PositionKeys)
	}

	if len(param.Statuses) > 0 {
		qFilter = append(qFilter, "status IN (?)")
		qFilterParam = append(qFilterParam, param.Statuses)
	}

	if param.CurrentOnly {
		qFilter = append(qFilter, "is_current = ?")
		qFilterParam = append(qFilterParam, true)
	}

	if param.MarkedForReview != nil {
		qFilter = append(qFilter, "marked_for_review = ?")
		qFilterParam = append(qFilterParam, *param.MarkedForReview)
	}

	if len(qFilter) == 0 {
		return nil, fmt.Errorf("no filter provided")
	}

	if err := r.db.WithContext(ctx).Where(strings.Join(qFilter, " AND "), qFilterParam...).Find(&positions).Error; err != nil {
		return nil, err
	}

	return positions, nil
}

func (r *positionsRepository) Create(ctx context.Context, pos *model.Position, opts ...utils.DBOption) error {
	if pos.PositionKey == uuid.Nil {
		pos.PositionKey = uuid.New()
	}
	pos.IsCurrent = true
	if pos.RowStart.IsZero() {
		pos.RowStart = time.Now().UTC()
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(pos).Error
}

func (r *positionsRepository) LoadActivePositions(ctx context.Context) ([]model.Position, error) {
	return r.Get(ctx, dto.GetPositionsParam{
		Statuses:    []model.PositionStatus{model.StatusOpen, model.StatusClosing},
		CurrentOnly: true,
	})
}

func (r *positionsRepository) FindCurrentByKey(ctx context.Context, key uuid.UUID) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Where("position_key = ? AND is_current = ?", key, true).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dto.ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// SaveMonitorUpdate records refreshed live fields by closing the current row
// and inserting a successor, keeping the full row history queryable.
func (r *positionsRepository) SaveMonitorUpdate(ctx context.Context, pos *model.Position) (*model.Position, error) {
	var next *model.Position
	err := r.uow.Run(func(opts ...utils.DBOption) error {
		tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
		var err error
		next, err = r.supersede(tx, pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// SaveExitUpdate atomically supersedes the position row and appends the exit
// record. Either the whole transition lands or none of it.
func (r *positionsRepository) SaveExitUpdate(ctx context.Context, pos *model.Position, exit *model.PositionExit) (*model.Position, error) {
	var next *model.Position
	err := r.uow.Run(func(opts ...utils.DBOption) error {
		tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
		var err error
		next, err = r.supersede(tx, pos)
		if err != nil {
			return err
		}
		if exit != nil {
			if err := tx.Create(exit).Error; err != nil {
				return fmt.Errorf("failed to append position exit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (r *positionsRepository) MarkForReview(ctx context.Context, key uuid.UUID, reason string) error {
	current, err := r.FindCurrentByKey(ctx, key)
	if err != nil {
		return err
	}
	current.MarkedForReview = true
	current.ReviewReason = reason
	_, err = r.SaveMonitorUpdate(ctx, current)
	return err
}

// FindDuplicateCurrentKeys scans for position keys holding more than one
// current row, which breaks the single-current-row invariant.
func (r *positionsRepository) FindDuplicateCurrentKeys(ctx context.Context) ([]uuid.UUID, error) {
	var keys []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select("position_key").
		Where("is_current = ?", true).
		Group("position_key").
		Having("COUNT(*) > 1").
		Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// supersede closes the single current row for pos's key and inserts pos as
// the new current row. Affecting any number of rows other than exactly one
// is an invariant violation and aborts the transaction.
func (r *positionsRepository) supersede(tx *gorm.DB, pos *model.Position) (*model.Position, error) {
	now := time.Now().UTC()

	res := tx.Model(&model.Position{}).
		Where("position_key = ? AND is_current = ?", pos.PositionKey, true).
		Updates(map[string]interface{}{"is_current": false, "row_end": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to close current row: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: %d current rows for key %s", dto.ErrInvariantViolation, res.RowsAffected, pos.PositionKey)
	}

	next := *pos
	next.ID = 0
	next.IsCurrent = true
	next.RowStart = now
	next.RowEnd = nil

	if err := tx.Create(&next).Error; err != nil {
		return nil, fmt.Errorf("failed to insert successor row: %w", err)
	}
	return &next, nil
}
