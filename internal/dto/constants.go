package dto

import "errors"

var (
	// ErrNoQuote means no usable price is available. Absence of data is never
	// interpreted as "no exit needed"; the evaluator returns no decision.
	ErrNoQuote = errors.New("no quote available")

	// ErrStaleData means price data has been missing past the allowed number
	// of consecutive checks.
	ErrStaleData = errors.New("price data is stale")

	// ErrInvariantViolation signals a broken storage invariant, e.g. two
	// current rows for one position key. Fatal for the affected position,
	// never auto-corrected.
	ErrInvariantViolation = errors.New("storage invariant violation")

	// ErrImmutableStrategy is returned on any attempt to mutate a strategy
	// version's rule payload after creation.
	ErrImmutableStrategy = errors.New("strategy version rules are immutable")

	// ErrExitExhausted means every walk attempt and escalation failed to fill.
	ErrExitExhausted = errors.New("exit attempts exhausted")

	// ErrPositionOwned means the position is already in status closing and
	// owned by an execution in flight.
	ErrPositionOwned = errors.New("position is owned by an in-flight exit")

	// ErrInexactPrice flags a lossy numeric representation on the wire, which
	// the engine treats as a contract violation.
	ErrInexactPrice = errors.New("non-exact price representation")

	ErrStrategyNotFound = errors.New("strategy version not found")
	ErrPositionNotFound = errors.New("position not found")
)
