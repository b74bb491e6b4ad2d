package service

import (
	"context"
	"testing"
	"time"

	"prediction-trading/internal/repository"
	"prediction-trading/pkg/common"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestMaintenance(t *testing.T) (*MaintenanceService, sqlmock.Sqlmock, *fakeAlertSink) {
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

	repo := &repository.Repository{PositionsRepo: repository.NewPositionsRepository(gdb)}
	executor, _, _ := newTestExecutor(t, newFakePositionStore(), newFakeOrders(), &fakeMarketData{})
	alerts := &fakeAlertSink{}
	maintenance := NewMaintenanceService(testConfig(), testLogger(), repo, executor, alerts)
	return maintenance, mock, alerts
}

func TestSettleClosedEvents_AdvancesPastCloseOnly(t *testing.T) {
	maintenance, mock, _ := newTestMaintenance(t)
	now := time.Now().UTC()
	expired := uuid.New()
	pending := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "position_key", "is_current", "status", "event_close_time"}).
		AddRow(1, expired, true, "closed", now.Add(-time.Hour)).
		AddRow(2, pending, true, "closed", now.Add(time.Hour))
	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE status IN`).
		WillReturnRows(rows)

	// Only the expired position is superseded into status settled.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	require.NoError(t, maintenance.SettleClosedEvents(context.Background(), now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_DuplicateCurrentRowsRaiseAlert(t *testing.T) {
	maintenance, mock, alerts := newTestMaintenance(t)
	dup := uuid.New()

	mock.ExpectQuery(`SELECT "position_key" FROM "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"position_key"}).AddRow(dup))

	// MarkForReview loads the current row and supersedes it with the flag set.
	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE position_key`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "position_key", "is_current", "status"}).
			AddRow(1, dup, true, "open"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "positions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "positions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	require.NoError(t, maintenance.Reconcile(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, common.ALERT_SEVERITY_CRITICAL, alerts.alerts[0].severity)
	assert.Equal(t, common.COMPONENT_RECONCILE, alerts.alerts[0].component)
	assert.Equal(t, common.ALERT_INVARIANT_VIOLATION, alerts.alerts[0].message)
}
