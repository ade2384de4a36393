// Package scheduler drives the background jobs of the alert backend:
// the periodic alert evaluation pass, quote cache housekeeping and
// retention cleanup of old triggered alerts.
package scheduler

import (
	"log"
	"sync"
	"time"

	"gatilho_backend/models"
	"gatilho_backend/services"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

const (
	cacheCleanupIntervalMinutes = 10
	triggeredAlertRetentionDays = 30
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron            *gocron.Scheduler
	db              *gorm.DB
	checker         *services.AlertChecker
	cache           *services.QuoteCache
	intervalMinutes int
	mu              sync.Mutex
	started         bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB, checker *services.AlertChecker, cache *services.QuoteCache, checkIntervalMinutes int) *Scheduler {
	if checkIntervalMinutes < 1 {
		checkIntervalMinutes = 5
	}
	return &Scheduler{
		cron:            gocron.NewScheduler(time.UTC),
		db:              db,
		checker:         checker,
		cache:           cache,
		intervalMinutes: checkIntervalMinutes,
	}
}

// Start registers all jobs and starts the scheduler. Calling Start on an
// already started scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		log.Println("Scheduler already started")
		return
	}
	s.started = true

	log.Println("Starting scheduler...")

	// SingletonMode skips a tick entirely while the previous pass is still
	// running; ticks are never queued.
	s.cron.Every(s.intervalMinutes).Minutes().SingletonMode().Do(s.runAlertPass)

	s.cron.Every(cacheCleanupIntervalMinutes).Minutes().Do(s.cleanupQuoteCache)

	// Retention cleanup of old triggered alerts, daily after market close
	s.cron.Every(1).Day().At("03:00").Do(s.cleanupTriggeredAlerts)

	s.cron.StartAsync()
	log.Printf("Scheduler started, checking alerts every %d minutes", s.intervalMinutes)
}

// Stop stops scheduling new ticks; an in-flight pass is allowed to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cron.Stop()
	s.started = false
	log.Println("Scheduler stopped")
}

// JobCount returns the number of registered jobs
func (s *Scheduler) JobCount() int {
	return len(s.cron.Jobs())
}

// runAlertPass runs one evaluation pass over all eligible alerts
func (s *Scheduler) runAlertPass() {
	triggered, err := s.checker.CheckAllAlerts()
	if err != nil {
		log.Printf("Alert pass failed: %v", err)
		return
	}
	if triggered > 0 {
		log.Printf("Alert pass triggered %d alerts", triggered)
	}
}

// cleanupQuoteCache purges expired quote cache entries
func (s *Scheduler) cleanupQuoteCache() {
	if removed := s.cache.Cleanup(); removed > 0 {
		log.Printf("Quote cache cleanup: %d expired entries removed", removed)
	}
}

// cleanupTriggeredAlerts hard-deletes triggered alerts past the retention
// window. Active alerts are never touched.
func (s *Scheduler) cleanupTriggeredAlerts() {
	cutoff := time.Now().UTC().AddDate(0, 0, -triggeredAlertRetentionDays)

	result := s.db.Where("triggered = ? AND triggered_at < ?", true, cutoff).
		Delete(&models.Alert{})
	if result.Error != nil {
		log.Printf("Error cleaning up old alerts: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("Retention cleanup removed %d triggered alerts", result.RowsAffected)
	}
}
