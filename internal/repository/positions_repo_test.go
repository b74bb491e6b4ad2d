package repository

import (
	"context"
	"testing"
	"time"

	"prediction-trading/internal/dto"
	"prediction-trading/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func testPosition() *model.Position {
	return &model.Position{
		ID:             7,
		PositionKey:    uuid.New(),
		IsCurrent:      true,
		RowStart:       time.Now().Add(-time.Hour),
		InstrumentID:   "MKT-FED-DEC",
		Side:           model.SideYes,
		Status:         model.StatusOpen,
		EntryPrice:     decimal.RequireFromString("0.40"),
		Quantity:       decimal.RequireFromString("100"),
		TargetPrice:    decimal.RequireFromString("0.60"),
		StopLossPrice:  decimal.RequireFromString("0.30"),
		StrategyID:     "strat-v1",
		ModelVersionID: "model-v1",
		EventCloseTime: time.Now().Add(48 * time.Hour),
	}
}

func TestSaveMonitorUpdate_SupersedesCurrentRow(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	pos := testPosition()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectCommit()

	next, err := repo.SaveMonitorUpdate(context.Background(), pos)
	require.NoError(t, err)
	assert.True(t, next.IsCurrent)
	assert.Equal(t, uint(8), next.ID)
	assert.Equal(t, pos.PositionKey, next.PositionKey)
	assert.Nil(t, next.RowEnd)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMonitorUpdate_InvariantViolation(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	pos := testPosition()

	tests := []struct {
		name string
		rows int64
	}{
		{name: "no current row", rows: 0},
		{name: "duplicated current rows", rows: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE "positions" SET`).
				WillReturnResult(sqlmock.NewResult(0, tt.rows))
			mock.ExpectRollback()

			_, err := repo.SaveMonitorUpdate(context.Background(), pos)
			require.ErrorIs(t, err, dto.ErrInvariantViolation)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSaveExitUpdate_AppendsExitInSameTransaction(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	pos := testPosition()
	pos.Status = model.StatusClosed

	exit := &model.PositionExit{
		PositionKey: pos.PositionKey,
		StrategyID:  pos.StrategyID,
		Condition:   model.ExitStopLoss,
		Priority:    "CRITICAL",
		Quantity:    decimal.RequireFromString("100"),
		ExitPrice:   decimal.RequireFromString("0.30"),
		RealizedPnL: decimal.RequireFromString("-10"),
		TradeID:     "ord-1",
		ExitedAt:    time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectQuery(`INSERT INTO "position_exits"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	next, err := repo.SaveExitUpdate(context.Background(), pos, exit)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, next.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveExitUpdate_RollsBackWhenExitInsertFails(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	pos := testPosition()

	exit := &model.PositionExit{PositionKey: pos.PositionKey, StrategyID: pos.StrategyID, Condition: model.ExitStopLoss, Priority: "CRITICAL", ExitedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectQuery(`INSERT INTO "position_exits"`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.SaveExitUpdate(context.Background(), pos, exit)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCurrentByKey_NotFound(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)

	mock.ExpectQuery(`SELECT \* FROM "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindCurrentByKey(context.Background(), uuid.New())
	require.ErrorIs(t, err, dto.ErrPositionNotFound)
}

func TestLoadActivePositions_FiltersStatusAndCurrent(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	key := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "position_key", "is_current", "status", "instrument_id"}).
		AddRow(1, key, true, "open", "MKT-FED-DEC")

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE status IN`).
		WillReturnRows(rows)

	positions, err := repo.LoadActivePositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, key, positions[0].PositionKey)
	assert.Equal(t, model.StatusOpen, positions[0].Status)
}

func TestFindDuplicateCurrentKeys(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewPositionsRepository(gdb)
	dup := uuid.New()

	mock.ExpectQuery(`SELECT "position_key" FROM "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"position_key"}).AddRow(dup))

	keys, err := repo.FindDuplicateCurrentKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, dup, keys[0])
}
