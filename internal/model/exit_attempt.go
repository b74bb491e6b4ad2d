package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AttemptOutcome string

const (
	AttemptFilled        AttemptOutcome = "filled"
	AttemptPartialFilled AttemptOutcome = "partial_filled"
	AttemptTimeout       AttemptOutcome = "timeout"
	AttemptCancelled     AttemptOutcome = "cancelled"
	AttemptRejected      AttemptOutcome = "rejected"
)

// ExitAttempt logs every order placement tried while pursuing an exit,
// regardless of outcome. This is the audit trail for slippage and
// missed-fill analysis.
type ExitAttempt struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PositionKey    uuid.UUID       `gorm:"type:uuid;not null;index" json:"position_key"`
	Condition      ExitCondition   `gorm:"not null" json:"condition"`
	Priority       string          `gorm:"not null" json:"priority"`
	AttemptNumber  int             `gorm:"not null" json:"attempt_number"`
	RequestedPrice decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"requested_price"`
	Quantity       decimal.Decimal `gorm:"type:numeric(16,4);not null" json:"quantity"`
	TimeoutSeconds int             `gorm:"not null" json:"timeout_seconds"`
	Outcome        AttemptOutcome  `gorm:"not null" json:"outcome"`
	OrderID        string          `json:"order_id"`
	FilledQuantity decimal.Decimal `gorm:"type:numeric(16,4)" json:"filled_quantity"`
	AttemptedAt    time.Time       `gorm:"not null" json:"attempted_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ExitAttempt) TableName() string {
	return "exit_attempts"
}
