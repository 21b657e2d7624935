package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMonitoring(t *testing.T) (*MonitoringService, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	m := NewMonitoringService(db, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 3, 9, 13, 5, 0, 0, time.UTC) }
	return m, mock
}

func TestMonitoring_RecordFiringError(t *testing.T) {
	m, mock := setupMonitoring(t)

	mock.ExpectQuery(`INSERT INTO "error_logs" \("level","source","platform","schedule_id","post_id","firing_id","title","message","context"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	m.RecordFiringError(4, "f-1", "twitter", "Firing aborted: create post", errors.New("connection refused"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitoring_RecordFiringErrorSwallowsStorageFailure(t *testing.T) {
	m, mock := setupMonitoring(t)

	mock.ExpectQuery(`INSERT INTO "error_logs"`).WillReturnError(errors.New("db down"))

	assert.NotPanics(t, func() {
		m.RecordFiringError(4, "f-1", "", "Content generation failed", nil)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitoring_RecordPublishOutcome(t *testing.T) {
	m, mock := setupMonitoring(t)

	mock.ExpectQuery(`INSERT INTO "metrics_samples"`).
		WithArgs(MetricPublishFailure, "counter", float64(1), `{"platform":"twitter"}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	m.RecordPublishOutcome("twitter", false)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonitoring_UpdatePlatformStats(t *testing.T) {
	m, mock := setupMonitoring(t)

	rows := sqlmock.NewRows([]string{"platform", "total_posts", "posted_posts", "failed_posts", "scheduled_posts", "last_success_at", "last_failure_at"}).
		AddRow("twitter", 3, 2, 1, 0, time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC), nil)
	mock.ExpectQuery(`(?s)SELECT platform,.*FROM "generated_posts" WHERE created_at >= .* GROUP BY platform`).
		WillReturnRows(rows)
	mock.ExpectQuery(`(?s)INSERT INTO "platform_stats" .* ON CONFLICT \("date","platform"\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, m.UpdatePlatformStats())
	assert.NoError(t, mock.ExpectationsWereMet())
}
