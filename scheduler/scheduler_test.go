package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"gatilho_backend/models"
	"gatilho_backend/services"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scheduler_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateAlertModels(db))

	cache := services.NewQuoteCache()
	market := services.NewMarketDataService("test-key", cache)
	notifier := services.NewEmailNotificationService("", "alerts@example.com")
	checker := services.NewAlertChecker(db, market, notifier, nil, nil)

	scheduler := NewScheduler(db, checker, cache, 5)
	t.Cleanup(scheduler.Stop)
	return scheduler, db
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	scheduler, _ := newTestScheduler(t)

	scheduler.Start()
	require.Equal(t, 3, scheduler.JobCount())

	// A second Start must not register duplicate jobs
	scheduler.Start()
	require.Equal(t, 3, scheduler.JobCount())
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	scheduler, _ := newTestScheduler(t)
	scheduler.Stop()
}

func TestSchedulerDefaultsInvalidInterval(t *testing.T) {
	scheduler := NewScheduler(nil, nil, services.NewQuoteCache(), 0)
	require.Equal(t, 5, scheduler.intervalMinutes)
}

func TestCleanupTriggeredAlertsHonorsRetention(t *testing.T) {
	scheduler, db := newTestScheduler(t)

	user := models.User{Email: "carla@example.com", HashedPassword: "x"}
	require.NoError(t, db.Create(&user).Error)

	oldTrigger := time.Now().UTC().AddDate(0, 0, -40)
	recentTrigger := time.Now().UTC().AddDate(0, 0, -5)

	expired := models.Alert{
		UserID: user.ID, Ticker: "PETR4",
		AlertType: models.AlertTypePrice, Condition: models.ConditionAbove,
		TargetValue: 38.00, Triggered: true, TriggeredAt: &oldTrigger,
	}
	recent := models.Alert{
		UserID: user.ID, Ticker: "VALE3",
		AlertType: models.AlertTypePrice, Condition: models.ConditionAbove,
		TargetValue: 50.00, Triggered: true, TriggeredAt: &recentTrigger,
	}
	active := models.Alert{
		UserID: user.ID, Ticker: "ITUB4",
		AlertType: models.AlertTypePrice, Condition: models.ConditionBelow,
		TargetValue: 30.00, IsActive: true,
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&recent).Error)
	require.NoError(t, db.Create(&active).Error)

	scheduler.cleanupTriggeredAlerts()

	var remaining []models.Alert
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)

	tickers := []string{remaining[0].Ticker, remaining[1].Ticker}
	require.NotContains(t, tickers, "PETR4")
	require.Contains(t, tickers, "VALE3")
	require.Contains(t, tickers, "ITUB4")
}
