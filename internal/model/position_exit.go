package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionExit is an append-only record of a completed exit. A position can
// accumulate several rows through partial fills.
type PositionExit struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PositionKey uuid.UUID       `gorm:"type:uuid;not null;index" json:"position_key"`
	StrategyID  string          `gorm:"not null;index" json:"strategy_id"`
	Condition   ExitCondition   `gorm:"not null" json:"condition"`
	Priority    string          `gorm:"not null" json:"priority"`
	Quantity    decimal.Decimal `gorm:"type:numeric(16,4);not null" json:"quantity"`
	ExitPrice   decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"exit_price"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(14,6);not null" json:"realized_pnl"`
	TradeID     string          `gorm:"not null" json:"trade_id"`
	ExitedAt    time.Time       `gorm:"not null" json:"exited_at"`
	RolledUp    bool            `gorm:"not null;default:false;index" json:"rolled_up"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PositionExit) TableName() string {
	return "position_exits"
}
