package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	SideYes PositionSide = "yes"
	SideNo  PositionSide = "no"
)

type PositionStatus string

const (
	StatusPending PositionStatus = "pending"
	StatusOpen    PositionStatus = "open"
	StatusClosing PositionStatus = "closing"
	StatusClosed  PositionStatus = "closed"
	StatusSettled PositionStatus = "settled"
)

// ExitCondition enumerates the reasons the engine may close a position.
type ExitCondition string

const (
	ExitStopLoss         ExitCondition = "stop_loss"
	ExitCircuitBreaker   ExitCondition = "circuit_breaker"
	ExitTrailingStop     ExitCondition = "trailing_stop"
	ExitTimeBasedUrgent  ExitCondition = "time_based_urgent"
	ExitLiquidityDriedUp ExitCondition = "liquidity_dried_up"
	ExitProfitTarget     ExitCondition = "profit_target"
	ExitPartialTarget    ExitCondition = "partial_exit_target"
	ExitEarly            ExitCondition = "early_exit"
	ExitEdgeDisappeared  ExitCondition = "edge_disappeared"
	ExitRebalance        ExitCondition = "rebalance"
)

// ExitPriority orders exit conditions. Higher wins when several conditions are
// true in the same evaluation pass.
type ExitPriority int

const (
	PriorityLow ExitPriority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p ExitPriority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// TrailingStopState is the persisted trailing-stop snapshot. PeakPrice only
// ever moves in the favorable direction and CurrentStopPrice is recomputed
// from it, so the stop tightens and never loosens.
type TrailingStopState struct {
	IsActive         bool            `gorm:"column:is_active" json:"is_active"`
	ActivationPrice  decimal.Decimal `gorm:"column:activation_price;type:numeric(12,6)" json:"activation_price"`
	PeakPrice        decimal.Decimal `gorm:"column:peak_price;type:numeric(12,6)" json:"peak_price"`
	CurrentStopPrice decimal.Decimal `gorm:"column:current_stop_price;type:numeric(12,6)" json:"current_stop_price"`
	UpdatedAt        *time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// Position is one SCD2 row of a trading position. The business key
// PositionKey is stable across row versions; exactly one row per key carries
// IsCurrent at any instant. Live-field updates close the old row and insert a
// new one instead of mutating in place.
type Position struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PositionKey uuid.UUID  `gorm:"type:uuid;not null;index:idx_positions_key" json:"position_key"`
	IsCurrent   bool       `gorm:"not null;index:idx_positions_current" json:"is_current"`
	RowStart    time.Time  `gorm:"not null" json:"row_start"`
	RowEnd      *time.Time `json:"row_end"`

	InstrumentID string         `gorm:"not null" json:"instrument_id"`
	Side         PositionSide   `gorm:"not null" json:"side"`
	Status       PositionStatus `gorm:"not null;index" json:"status"`

	EntryPrice decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(16,4);not null" json:"quantity"`
	Fees       decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"fees"`

	// Exit configuration, fixed at entry.
	TargetPrice           decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"target_price"`
	StopLossPrice         decimal.Decimal `gorm:"type:numeric(12,6);not null" json:"stop_loss_price"`
	TrailingActivationPct decimal.Decimal `gorm:"type:numeric(8,6)" json:"trailing_activation_pct"`
	TrailingDistancePct   decimal.Decimal `gorm:"type:numeric(8,6)" json:"trailing_distance_pct"`

	Trailing TrailingStopState `gorm:"embedded;embeddedPrefix:trailing_" json:"trailing"`

	// Live monitoring fields, refreshed by the scheduler.
	CurrentPrice      decimal.NullDecimal `gorm:"type:numeric(12,6)" json:"current_price"`
	UnrealizedPnL     decimal.NullDecimal `gorm:"column:unrealized_pnl;type:numeric(14,6)" json:"unrealized_pnl"`
	LastCheckedAt     *time.Time          `json:"last_checked_at"`
	Urgent            bool                `gorm:"not null;default:false" json:"urgent"`
	StaleChecks       int                 `gorm:"not null;default:0" json:"stale_checks"`
	MarkedForReview   bool                `gorm:"not null;default:false" json:"marked_for_review"`
	ReviewReason      string              `json:"review_reason"`
	PartialExitTaken  bool                `gorm:"not null;default:false" json:"partial_exit_taken"`
	ExitWalkCount     int                 `gorm:"not null;default:0" json:"exit_walk_count"`
	PendingExitReason *ExitCondition      `json:"pending_exit_reason"`

	// Attribution, locked at entry. A later strategy edit must not change
	// in-flight exit behavior.
	StrategyID       string          `gorm:"not null" json:"strategy_id"`
	ModelVersionID   string          `gorm:"not null" json:"model_version_id"`
	EntryProbability decimal.Decimal `gorm:"type:numeric(8,6)" json:"entry_probability"`
	EntryEdge        decimal.Decimal `gorm:"type:numeric(8,6)" json:"entry_edge"`
	EntryMarketPrice decimal.Decimal `gorm:"type:numeric(12,6)" json:"entry_market_price"`

	EventCloseTime time.Time `gorm:"not null" json:"event_close_time"`

	// Exit outcome.
	RealizedPnL  decimal.NullDecimal `gorm:"column:realized_pnl;type:numeric(14,6)" json:"realized_pnl"`
	ExitPrice    decimal.NullDecimal `gorm:"type:numeric(12,6)" json:"exit_price"`
	ExitTime     *time.Time          `json:"exit_time"`
	ExitReason   *ExitCondition      `json:"exit_reason"`
	ExitPriority string              `json:"exit_priority"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// IsShort reports whether the position profits from a falling yes-price.
// Quotes are always in yes terms; a no position mirrors every threshold.
func (p *Position) IsShort() bool {
	return p.Side == SideNo
}

func (p *Position) IsTerminal() bool {
	return p.Status == StatusClosed || p.Status == StatusSettled
}

// Edge recomputes the position's edge at the given price from the probability
// locked at entry: probability minus price for yes, price minus probability
// for no.
func (p *Position) Edge(price decimal.Decimal) decimal.Decimal {
	if p.IsShort() {
		return price.Sub(p.EntryProbability)
	}
	return p.EntryProbability.Sub(price)
}

// UnrealizedProfit computes mark-to-market P&L at the given price, net of fees.
func (p *Position) UnrealizedProfit(price decimal.Decimal) decimal.Decimal {
	if p.IsShort() {
		return p.EntryPrice.Sub(price).Mul(p.Quantity).Sub(p.Fees)
	}
	return price.Sub(p.EntryPrice).Mul(p.Quantity).Sub(p.Fees)
}

// FavorableMove returns the relative move from entry in the position's
// favorable direction; negative values mean the position is under water.
func (p *Position) FavorableMove(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	move := price.Sub(p.EntryPrice).Div(p.EntryPrice)
	if p.IsShort() {
		return move.Neg()
	}
	return move
}
