package repository

import (
	"context"
	"testing"
	"time"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"
	"prediction-trading/pkg/cache"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersionCache() cache.Cache {
	return cache.NewCache(time.Minute, time.Minute)
}

func strategyRows(versionID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "version_id", "entry_rules_version", "exit_rules_version", "status", "rules"}).
		AddRow(1, versionID, "entry-v1", "exit-v1", "active", []byte(`{"exit_rules_version":"exit-v1","min_edge":"0.05","circuit_breaker_loss_pct":"0.15"}`))
}

func TestResolveStrategyVersion_CachesIndefinitely(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewStrategyVersionsRepository(gdb, testVersionCache())

	mock.ExpectQuery(`SELECT \* FROM "strategy_versions"`).
		WillReturnRows(strategyRows("strat-v1"))

	rules, err := repo.ResolveStrategyVersion(context.Background(), "strat-v1")
	require.NoError(t, err)
	assert.Equal(t, "exit-v1", rules.ExitRulesVersion)
	assert.True(t, rules.MinEdge.Equal(decimal.RequireFromString("0.05")))

	// Second resolve must come from cache: no further query is expected.
	again, err := repo.ResolveStrategyVersion(context.Background(), "strat-v1")
	require.NoError(t, err)
	assert.Equal(t, rules, again)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStrategyVersion_Unknown(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewStrategyVersionsRepository(gdb, testVersionCache())

	mock.ExpectQuery(`SELECT \* FROM "strategy_versions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.ResolveStrategyVersion(context.Background(), "missing")
	require.ErrorIs(t, err, dto.ErrStrategyNotFound)
}

func TestSaveRules_AlwaysRejected(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewStrategyVersionsRepository(gdb, testVersionCache())

	mock.ExpectQuery(`SELECT \* FROM "strategy_versions"`).
		WillReturnRows(strategyRows("strat-v1"))

	err := repo.SaveRules(context.Background(), "strat-v1", model.ExitRules{MinEdge: decimal.RequireFromString("0.10")})
	require.ErrorIs(t, err, dto.ErrImmutableStrategy)
}

func TestAddPerformance(t *testing.T) {
	t.Run("increments counters", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		repo := NewStrategyVersionsRepository(gdb, testVersionCache())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "strategy_versions" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.AddPerformance(context.Background(), "strat-v1", 3, 2, decimal.RequireFromString("12.5"))
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown version", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		repo := NewStrategyVersionsRepository(gdb, testVersionCache())

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "strategy_versions" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.AddPerformance(context.Background(), "missing", 1, 0, decimal.Zero)
		require.ErrorIs(t, err, dto.ErrStrategyNotFound)
	})
}

func TestUpdateStatus_UnknownVersion(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewStrategyVersionsRepository(gdb, testVersionCache())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "strategy_versions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), "missing", model.StrategyDeprecated)
	require.ErrorIs(t, err, dto.ErrStrategyNotFound)
}
