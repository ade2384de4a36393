package controllers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"gatilho_backend/models"
	"gatilho_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MonitoringController exposes operational status and diagnostic tooling
type MonitoringController struct {
	db      *gorm.DB
	market  *services.MarketDataService
	checker *services.AlertChecker
	stream  *services.AlertStreamService
	cache   *services.QuoteCache
	archive *services.MongoArchive
}

// NewMonitoringController creates a new monitoring controller
func NewMonitoringController(db *gorm.DB, market *services.MarketDataService, checker *services.AlertChecker, stream *services.AlertStreamService, cache *services.QuoteCache, archive *services.MongoArchive) *MonitoringController {
	return &MonitoringController{
		db:      db,
		market:  market,
		checker: checker,
		stream:  stream,
		cache:   cache,
		archive: archive,
	}
}

// Status returns system-wide counters
// GET /api/monitoring/status
func (mc *MonitoringController) Status(c *gin.Context) {
	var totalUsers, totalAlerts, activeAlerts, triggeredAlerts int64
	mc.db.Model(&models.User{}).Count(&totalUsers)
	mc.db.Model(&models.Alert{}).Count(&totalAlerts)
	mc.db.Model(&models.Alert{}).Where("is_active = ?", true).Count(&activeAlerts)
	mc.db.Model(&models.Alert{}).Where("triggered = ?", true).Count(&triggeredAlerts)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	var recentAlerts, recentTriggered int64
	mc.db.Model(&models.Alert{}).Where("created_at >= ?", yesterday).Count(&recentAlerts)
	mc.db.Model(&models.Alert{}).Where("triggered_at >= ?", yesterday).Count(&recentTriggered)

	type tickerCount struct {
		Ticker string `json:"ticker"`
		Count  int64  `json:"alerts"`
	}
	var topTickers []tickerCount
	if err := mc.db.Model(&models.Alert{}).
		Select("ticker, count(id) as count").
		Where("is_active = ?", true).
		Group("ticker").
		Order("count DESC").
		Limit(5).
		Scan(&topTickers).Error; err != nil {
		log.Printf("Error loading top tickers: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "operational",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics": gin.H{
			"users": gin.H{
				"total": totalUsers,
			},
			"alerts": gin.H{
				"total":              totalAlerts,
				"active":             activeAlerts,
				"triggered":          triggeredAlerts,
				"created_last_24h":   recentAlerts,
				"triggered_last_24h": recentTriggered,
			},
			"top_tickers": topTickers,
			"quote_cache": mc.cache.Stats(),
			"websocket": gin.H{
				"clients": mc.stream.TotalClients(),
			},
		},
	})
}

// TestQuote fetches a quote on demand, bypassing nothing: the same cache and
// fallback path the engine uses.
// GET /api/monitoring/quote/:ticker
func (mc *MonitoringController) TestQuote(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}

	quote := mc.market.GetQuote(ticker)
	c.JSON(http.StatusOK, quote)
}

// RecentTriggers returns the latest archived trigger events. Without a
// configured archive the endpoint reports it disabled instead of erroring.
// GET /api/monitoring/triggers
func (mc *MonitoringController) RecentTriggers(c *gin.Context) {
	if !mc.archive.Enabled() {
		c.JSON(http.StatusOK, gin.H{
			"enabled":  false,
			"triggers": []services.TriggerRecord{},
		})
		return
	}

	records, err := mc.archive.RecentTriggers(20)
	if err != nil {
		log.Printf("Error loading archived triggers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load trigger history"})
		return
	}
	if records == nil {
		records = []services.TriggerRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":  true,
		"triggers": records,
	})
}

// CheckTicker runs a single-ticker evaluation pass on demand
// POST /api/monitoring/check/:ticker
func (mc *MonitoringController) CheckTicker(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}

	triggered, err := mc.checker.CheckTickerAlerts(ticker)
	if err != nil {
		log.Printf("Error checking alerts for %s: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticker":    ticker,
		"triggered": triggered,
	})
}
