package contract

import (
	"context"

	"prediction-trading/internal/model"

	"github.com/google/uuid"
)

// PositionStore is the authoritative persistence boundary for positions.
// Every write is atomic per position update: either the whole state
// transition is recorded or none of it.
type PositionStore interface {
	LoadActivePositions(ctx context.Context) ([]model.Position, error)
	FindCurrentByKey(ctx context.Context, key uuid.UUID) (*model.Position, error)

	// SaveMonitorUpdate supersedes the current row with refreshed live fields.
	SaveMonitorUpdate(ctx context.Context, pos *model.Position) (*model.Position, error)

	// SaveExitUpdate supersedes the current row and, when exit is non-nil,
	// appends the exit record in the same transaction.
	SaveExitUpdate(ctx context.Context, pos *model.Position, exit *model.PositionExit) (*model.Position, error)

	MarkForReview(ctx context.Context, key uuid.UUID, reason string) error
}

// ExitAttemptStore is the append-only attempt log.
type ExitAttemptStore interface {
	AppendExitAttempt(ctx context.Context, attempt *model.ExitAttempt) error
}

// StrategyStore resolves immutable strategy versions. Results are cacheable
// indefinitely by version id.
type StrategyStore interface {
	ResolveStrategyVersion(ctx context.Context, versionID string) (*model.ExitRules, error)
}
