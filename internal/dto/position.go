package dto

import (
	"prediction-trading/internal/model"

	"github.com/google/uuid"
)

type GetPositionsParam struct {
	IDs             []uint                 `json:"ids"`
	PositionKeys    []uuid.UUID            `json:"position_keys"`
	Statuses        []model.PositionStatus `json:"statuses"`
	CurrentOnly     bool                   `json:"current_only"`
	MarkedForReview *bool                  `json:"marked_for_review"`
}

// EngineStatus is the ops-API snapshot of the scheduler.
type EngineStatus struct {
	ActivePositions int `json:"active_positions"`
	UrgentPositions int `json:"urgent_positions"`
	BudgetRemaining int `json:"budget_remaining"`
	BudgetCapacity  int `json:"budget_capacity"`
}
