package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gatilho_backend/models"

	"gorm.io/gorm"
)

// QuoteFetcher provides quotes to the engine. Implementations never fail:
// a usable (possibly synthetic) quote or nil is all a pass needs.
type QuoteFetcher interface {
	GetQuote(ticker string) *Quote
}

// AlertPusher is the live-push sink invoked after a trigger commits
type AlertPusher interface {
	PushAlert(userID uint, event AlertEvent)
}

// AlertChecker runs evaluation passes over all eligible alerts: load, dedupe
// tickers, fetch quotes concurrently, evaluate each alert against the pass
// snapshot, and hand matches to the trigger pipeline. Passes are single-flight:
// a call that overlaps a running pass is a logged no-op.
type AlertChecker struct {
	db       *gorm.DB
	market   QuoteFetcher
	notifier Notifier
	pusher   AlertPusher
	archive  *MongoArchive
	running  atomic.Bool
}

// NewAlertChecker creates the evaluation engine. pusher and archive may be
// nil when the corresponding sink is not configured.
func NewAlertChecker(db *gorm.DB, market QuoteFetcher, notifier Notifier, pusher AlertPusher, archive *MongoArchive) *AlertChecker {
	return &AlertChecker{
		db:       db,
		market:   market,
		notifier: notifier,
		pusher:   pusher,
		archive:  archive,
	}
}

// CheckAllAlerts runs one evaluation pass and returns how many alerts
// triggered. A failure to load the alert list aborts the pass; every other
// failure is isolated to the alert or ticker it belongs to.
func (c *AlertChecker) CheckAllAlerts() (int, error) {
	if !c.running.CompareAndSwap(false, true) {
		log.Println("Alert pass already running, skipping this tick")
		return 0, nil
	}
	defer c.running.Store(false)

	var alerts []models.Alert
	if err := c.db.Where("is_active = ? AND triggered = ?", true, false).Find(&alerts).Error; err != nil {
		return 0, fmt.Errorf("failed to load alerts: %w", err)
	}

	if len(alerts) == 0 {
		log.Println("No active alerts to check")
		return 0, nil
	}

	tickers := distinctTickers(alerts)
	log.Printf("Checking %d alerts across %d tickers...", len(alerts), len(tickers))

	quotes := c.fetchQuotes(tickers)
	triggered := c.evaluateAlerts(alerts, quotes)

	log.Printf("Alert pass completed: %d of %d alerts triggered", triggered, len(alerts))
	return triggered, nil
}

// CheckTickerAlerts runs the same per-alert logic restricted to one ticker.
// Used by the diagnostic endpoint.
func (c *AlertChecker) CheckTickerAlerts(ticker string) (int, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	var alerts []models.Alert
	if err := c.db.Where("ticker = ? AND is_active = ? AND triggered = ?", ticker, true, false).
		Find(&alerts).Error; err != nil {
		return 0, fmt.Errorf("failed to load alerts for %s: %w", ticker, err)
	}

	if len(alerts) == 0 {
		return 0, nil
	}

	quotes := map[string]*Quote{}
	if quote := c.market.GetQuote(ticker); quote != nil {
		quotes[ticker] = quote
	}

	return c.evaluateAlerts(alerts, quotes), nil
}

// distinctTickers collects the case-normalized ticker set of a pass
func distinctTickers(alerts []models.Alert) []string {
	seen := make(map[string]bool, len(alerts))
	tickers := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		ticker := strings.ToUpper(alert.Ticker)
		if !seen[ticker] {
			seen[ticker] = true
			tickers = append(tickers, ticker)
		}
	}
	return tickers
}

// fetchQuotes fans out one fetch per distinct ticker and collects the pass
// snapshot. A missing quote for one ticker never blocks the others.
func (c *AlertChecker) fetchQuotes(tickers []string) map[string]*Quote {
	quotes := make(map[string]*Quote, len(tickers))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, ticker := range tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			quote := c.market.GetQuote(ticker)
			if quote == nil {
				return
			}
			mu.Lock()
			quotes[ticker] = quote
			mu.Unlock()
		}(ticker)
	}
	wg.Wait()

	return quotes
}

// evaluateAlerts processes each alert independently against the snapshot.
// An error on alert N never aborts alert N+1.
func (c *AlertChecker) evaluateAlerts(alerts []models.Alert, quotes map[string]*Quote) int {
	triggered := 0
	for i := range alerts {
		alert := &alerts[i]

		quote := quotes[strings.ToUpper(alert.Ticker)]
		if quote == nil {
			// No quote this pass; the alert is retried on the next tick
			continue
		}

		current, ok := ExtractValue(alert, quote)
		if !ok {
			log.Printf("Alert %d has unknown type %q, skipping", alert.ID, alert.AlertType)
			continue
		}

		if !MatchesCondition(alert.Condition, current, alert.TargetValue) {
			continue
		}

		fired, err := c.triggerAlert(alert, current, quote)
		if err != nil {
			log.Printf("Error triggering alert %d: %v", alert.ID, err)
			continue
		}
		if !fired {
			continue
		}
		triggered++
		log.Printf("Alert triggered! %s %s %s %.2f (current %.2f)",
			alert.Ticker, alert.AlertType, alert.Condition, alert.TargetValue, current)
	}
	return triggered
}

// triggerAlert is the trigger pipeline: owner lookup, authoritative state
// transition, then best-effort email, live push and archive. The transition
// is a conditional update claiming the not-yet-triggered row, so an alert
// loaded by two overlapping passes fires exactly once; the loser sees zero
// rows affected and sends nothing. Notification failures never undo the
// transition, so an unavailable email channel cannot make the alert re-fire
// every pass. Returns whether this call fired the alert.
func (c *AlertChecker) triggerAlert(alert *models.Alert, currentValue float64, quote *Quote) (bool, error) {
	var user models.User
	if err := c.db.First(&user, alert.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("User %d not found for alert %d, skipping", alert.UserID, alert.ID)
			return false, nil
		}
		return false, fmt.Errorf("failed to load user %d: %w", alert.UserID, err)
	}

	now := time.Now().UTC()
	result := c.db.Model(&models.Alert{}).
		Where("id = ? AND triggered = ?", alert.ID, false).
		Updates(map[string]interface{}{
			"triggered":    true,
			"triggered_at": now,
			"is_active":    false,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to persist trigger state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Printf("Alert %d already triggered by a concurrent pass, skipping", alert.ID)
		return false, nil
	}
	alert.Triggered = true
	alert.TriggeredAt = &now
	alert.IsActive = false

	if err := c.notifier.SendAlertEmail(user.Email, alert.Ticker, alert.AlertType, alert.Condition, alert.TargetValue, currentValue); err != nil {
		log.Printf("Error sending alert email to %s: %v", user.Email, err)
	}

	if c.pusher != nil {
		c.pusher.PushAlert(user.ID, AlertEvent{
			Type:         "alert_triggered",
			AlertID:      alert.ID,
			Ticker:       alert.Ticker,
			AlertType:    alert.AlertType,
			Condition:    alert.Condition,
			TargetValue:  alert.TargetValue,
			CurrentValue: currentValue,
			TriggeredAt:  now.Format(time.RFC3339),
		})
	}

	if c.archive.Enabled() {
		record := TriggerRecord{
			AlertID:      alert.ID,
			UserID:       user.ID,
			Ticker:       alert.Ticker,
			AlertType:    alert.AlertType,
			Condition:    alert.Condition,
			TargetValue:  alert.TargetValue,
			CurrentValue: currentValue,
			Synthetic:    quote.Synthetic,
			TriggeredAt:  now,
		}
		if err := c.archive.SaveTrigger(record); err != nil {
			log.Printf("Error archiving trigger for alert %d: %v", alert.ID, err)
		}
	}

	return true, nil
}
