package dto

import (
	"time"

	"prediction-trading/internal/model"

	"github.com/shopspring/decimal"
)

// ExitDecision is the evaluator's verdict for one evaluation pass. At most
// one condition fires; Fired false with a Reason means "no decision", which
// is distinct from "hold".
type ExitDecision struct {
	Fired        bool                `json:"fired"`
	Condition    model.ExitCondition `json:"condition,omitempty"`
	Priority     model.ExitPriority  `json:"priority,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	TriggerPrice decimal.Decimal     `json:"trigger_price"`
	Edge         decimal.Decimal     `json:"edge"`
}

// Aggressiveness selects how an exit order is priced relative to the book.
type Aggressiveness string

const (
	AggressivenessMarketable   Aggressiveness = "marketable"
	AggressivenessAggressive   Aggressiveness = "aggressive"
	AggressivenessFair         Aggressiveness = "fair"
	AggressivenessConservative Aggressiveness = "conservative"
)

// TierPolicy is the execution profile of one priority tier.
type TierPolicy struct {
	Aggressiveness Aggressiveness
	Timeout        time.Duration
	MaxWalks       int
}

// PolicyFor returns the execution policy for a priority tier. CRITICAL takes
// the market immediately and never walks.
func PolicyFor(p model.ExitPriority) TierPolicy {
	switch p {
	case model.PriorityCritical:
		return TierPolicy{Aggressiveness: AggressivenessMarketable, Timeout: 5 * time.Second, MaxWalks: 1}
	case model.PriorityHigh:
		return TierPolicy{Aggressiveness: AggressivenessAggressive, Timeout: 10 * time.Second, MaxWalks: 2}
	case model.PriorityMedium:
		return TierPolicy{Aggressiveness: AggressivenessFair, Timeout: 30 * time.Second, MaxWalks: 5}
	default:
		return TierPolicy{Aggressiveness: AggressivenessConservative, Timeout: 60 * time.Second, MaxWalks: 10}
	}
}

// ConditionPriority maps each exit condition to its tier.
func ConditionPriority(c model.ExitCondition) model.ExitPriority {
	switch c {
	case model.ExitStopLoss, model.ExitCircuitBreaker:
		return model.PriorityCritical
	case model.ExitTrailingStop, model.ExitTimeBasedUrgent, model.ExitLiquidityDriedUp:
		return model.PriorityHigh
	case model.ExitProfitTarget, model.ExitPartialTarget:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}
