package repository

import (
	"context"
	"time"

	"prediction-trading/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExitAttemptsRepository interface {
	AppendExitAttempt(ctx context.Context, attempt *model.ExitAttempt) error
	ListByPositionKey(ctx context.Context, key uuid.UUID) ([]model.ExitAttempt, error)
	CountByPositionKey(ctx context.Context, key uuid.UUID) (int64, error)
}

type exitAttemptsRepository struct {
	db *gorm.DB
}

func NewExitAttemptsRepository(db *gorm.DB) ExitAttemptsRepository {
	return &exitAttemptsRepository{db: db}
}

func (r *exitAttemptsRepository) AppendExitAttempt(ctx context.Context, attempt *model.ExitAttempt) error {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *exitAttemptsRepository) ListByPositionKey(ctx context.Context, key uuid.UUID) ([]model.ExitAttempt, error) {
	var attempts []model.ExitAttempt
	err := r.db.WithContext(ctx).
		Where("position_key = ?", key).
		Order("attempted_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *exitAttemptsRepository) CountByPositionKey(ctx context.Context, key uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ExitAttempt{}).
		Where("position_key = ?", key).
		Count(&count).Error
	return count, err
}
