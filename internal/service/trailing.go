package service

import (
	"time"

	"prediction-trading/internal/model"

	"github.com/shopspring/decimal"
)

// TrailingStopTracker folds price observations into a position's trailing
// stop state. It is a pure function of the prior state and the new price, so
// the persisted state fully determines behavior across restarts.
type TrailingStopTracker struct{}

func NewTrailingStopTracker() *TrailingStopTracker {
	return &TrailingStopTracker{}
}

var one = decimal.NewFromInt(1)

// Observe returns the updated trailing state and whether anything changed.
// PeakPrice only ever moves in the favorable direction, so the stop price
// tightens and never loosens.
func (t *TrailingStopTracker) Observe(pos *model.Position, price decimal.Decimal, now time.Time) (model.TrailingStopState, bool) {
	state := pos.Trailing

	if pos.TrailingDistancePct.IsZero() {
		return state, false
	}

	if !state.IsActive {
		if pos.FavorableMove(price).LessThan(pos.TrailingActivationPct) {
			return state, false
		}
		state.IsActive = true
		state.ActivationPrice = price
		state.PeakPrice = price
		state.CurrentStopPrice = stopFromPeak(pos, price)
		state.UpdatedAt = &now
		return state, true
	}

	improved := price.GreaterThan(state.PeakPrice)
	if pos.IsShort() {
		improved = price.LessThan(state.PeakPrice)
	}
	if !improved {
		return state, false
	}

	state.PeakPrice = price
	state.CurrentStopPrice = stopFromPeak(pos, price)
	state.UpdatedAt = &now
	return state, true
}

func stopFromPeak(pos *model.Position, peak decimal.Decimal) decimal.Decimal {
	if pos.IsShort() {
		return peak.Mul(one.Add(pos.TrailingDistancePct))
	}
	return peak.Mul(one.Sub(pos.TrailingDistancePct))
}
