package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

func dashboardDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestConversionStatsRates(t *testing.T) {
	db, mock := dashboardDB(t)
	svc := NewDashboardService(db, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "lead_qualification"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "lead_qualification"`).
		WithArgs(models.StepCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "lead_qualification"`).
		WithArgs(models.StepAbandoned).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	stats, err := svc.GetConversionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalLeads)
	assert.InDelta(t, 0.4, stats.ConversionRate, 1e-9)
	assert.InDelta(t, 0.2, stats.AbandonRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversionStatsEmptyStore(t *testing.T) {
	db, mock := dashboardDB(t)
	svc := NewDashboardService(db, nil, nil, nil, nil)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`SELECT count\(\*\) FROM "lead_qualification"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}

	stats, err := svc.GetConversionStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ConversionRate)
	assert.Zero(t, stats.AbandonRate)
}

func TestConversionFunnelReachedCounts(t *testing.T) {
	db, mock := dashboardDB(t)
	svc := NewDashboardService(db, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT current_step, COUNT\(\*\) AS count FROM "lead_qualification"`).
		WillReturnRows(sqlmock.NewRows([]string{"current_step", "count"}).
			AddRow(models.StepStart, 5).
			AddRow(models.StepConsent, 3).
			AddRow(models.StepBant, 2).
			AddRow(models.StepCompleted, 1).
			AddRow(models.StepAbandoned, 4))

	funnel, err := svc.GetConversionFunnel(context.Background())
	require.NoError(t, err)
	require.Len(t, funnel, 7)

	// Reached accumulates from the end; abandoned leads are excluded.
	assert.Equal(t, models.StepStart, funnel[0].Step)
	assert.Equal(t, int64(11), funnel[0].Reached)
	assert.Equal(t, int64(6), funnel[1].Reached)
	assert.Equal(t, int64(1), funnel[6].Reached)

	// Reached never increases down the funnel.
	for i := 1; i < len(funnel); i++ {
		assert.LessOrEqual(t, funnel[i].Reached, funnel[i-1].Reached)
	}

	assert.Equal(t, 1.0, funnel[0].TransitionRate)
	assert.InDelta(t, 6.0/11.0, funnel[1].TransitionRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRealTimeMetricsWithoutIntegrations(t *testing.T) {
	db, mock := dashboardDB(t)
	svc := NewDashboardService(db, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "messages"`).
		WithArgs(false, models.RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	metrics, err := svc.GetRealTimeMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.OpenSessions)
	assert.Equal(t, 0, metrics.InFlightConversations)
	assert.Equal(t, int64(7), metrics.UnreadMessages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
