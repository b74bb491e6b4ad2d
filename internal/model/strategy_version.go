package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type StrategyStatus string

const (
	StrategyDraft      StrategyStatus = "draft"
	StrategyTesting    StrategyStatus = "testing"
	StrategyActive     StrategyStatus = "active"
	StrategyDeprecated StrategyStatus = "deprecated"
)

// ExitRules is the immutable exit-rule payload of a strategy version. Entry
// and exit rules carry their own sub-versions so they can evolve
// independently while the outer VersionID pins the exact combination.
type ExitRules struct {
	ExitRulesVersion string `json:"exit_rules_version"`

	MinEdge               decimal.Decimal `json:"min_edge"`
	CircuitBreakerLossPct decimal.Decimal `json:"circuit_breaker_loss_pct"`
	MaxSpread             decimal.Decimal `json:"max_spread"`
	MinDepth              decimal.Decimal `json:"min_depth"`
	RebalanceDriftPct     decimal.Decimal `json:"rebalance_drift_pct"`

	PartialExitEnabled bool            `json:"partial_exit_enabled"`
	PartialExitPrice   decimal.Decimal `json:"partial_exit_price"`
	PartialExitQtyPct  decimal.Decimal `json:"partial_exit_qty_pct"`

	TimeUrgentMinutes int `json:"time_urgent_minutes"`
}

// StrategyVersion is an append-only strategy record. The rule payload never
// mutates after creation; only status and aggregated performance may update.
// A new version supersedes an old one, it never edits it.
type StrategyVersion struct {
	ID                uint                          `gorm:"primaryKey" json:"id"`
	VersionID         string                        `gorm:"not null;uniqueIndex" json:"version_id"`
	EntryRulesVersion string                        `gorm:"not null" json:"entry_rules_version"`
	ExitRulesVersion  string                        `gorm:"not null" json:"exit_rules_version"`
	Status            StrategyStatus                `gorm:"not null" json:"status"`
	Rules             datatypes.JSONType[ExitRules] `gorm:"not null" json:"rules"`

	// Aggregated performance, maintained by the rollup job.
	TotalExits       int             `gorm:"not null;default:0" json:"total_exits"`
	WinningExits     int             `gorm:"not null;default:0" json:"winning_exits"`
	TotalRealizedPnL decimal.Decimal `gorm:"column:total_realized_pnl;type:numeric(16,6);not null;default:0" json:"total_realized_pnl"`
	LastRollupAt     *time.Time      `json:"last_rollup_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StrategyVersion) TableName() string {
	return "strategy_versions"
}
