package repository

import (
	"context"

	"prediction-trading/internal/model"
	"prediction-trading/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PositionExitsRepository interface {
	ListByPositionKey(ctx context.Context, key uuid.UUID) ([]model.PositionExit, error)
	ListUnrolled(ctx context.Context, limit int) ([]model.PositionExit, error)
	MarkRolledUp(ctx context.Context, ids []uint, opts ...utils.DBOption) error
}

type positionExitsRepository struct {
	db *gorm.DB
}

func NewPositionExitsRepository(db *gorm.DB) PositionExitsRepository {
	return &positionExitsRepository{db: db}
}

func (r *positionExitsRepository) ListByPositionKey(ctx context.Context, key uuid.UUID) ([]model.PositionExit, error) {
	var exits []model.PositionExit
	err := r.db.WithContext(ctx).
		Where("position_key = ?", key).
		Order("exited_at ASC").
		Find(&exits).Error
	if err != nil {
		return nil, err
	}
	return exits, nil
}

func (r *positionExitsRepository) ListUnrolled(ctx context.Context, limit int) ([]model.PositionExit, error) {
	var exits []model.PositionExit
	q := r.db.WithContext(ctx).
		Where("rolled_up = ?", false).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&exits).Error; err != nil {
		return nil, err
	}
	return exits, nil
}

func (r *positionExitsRepository) MarkRolledUp(ctx context.Context, ids []uint, opts ...utils.DBOption) error {
	if len(ids) == 0 {
		return nil
	}
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	return db.Model(&model.PositionExit{}).
		Where("id IN ?", ids).
		Update("rolled_up", true).Error
}
