package controllers

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"gatilho_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AnalyticsController serves read-only reporting over the alerts table
type AnalyticsController struct {
	db *gorm.DB
}

// NewAnalyticsController creates a new analytics controller
func NewAnalyticsController(db *gorm.DB) *AnalyticsController {
	return &AnalyticsController{db: db}
}

// Dashboard returns aggregate alert statistics for the authenticated user
// GET /api/analytics/dashboard
func (ac *AnalyticsController) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	type typeCount struct {
		AlertType models.AlertType `json:"alert_type"`
		Count     int64            `json:"count"`
	}
	var byType []typeCount
	if err := ac.db.Model(&models.Alert{}).
		Select("alert_type, count(id) as count").
		Where("user_id = ? AND is_active = ?", userID, true).
		Group("alert_type").
		Scan(&byType).Error; err != nil {
		log.Printf("Error loading alerts by type for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
		return
	}

	alertsByType := make(map[models.AlertType]int64, len(byType))
	for _, row := range byType {
		alertsByType[row.AlertType] = row.Count
	}

	thirtyDaysAgo := time.Now().UTC().AddDate(0, 0, -30)
	var recentTriggers int64
	ac.db.Model(&models.Alert{}).
		Where("user_id = ? AND triggered = ? AND triggered_at >= ?", userID, true, thirtyDaysAgo).
		Count(&recentTriggers)

	var totalCreated, totalTriggered int64
	ac.db.Model(&models.Alert{}).Where("user_id = ?", userID).Count(&totalCreated)
	ac.db.Model(&models.Alert{}).Where("user_id = ? AND triggered = ?", userID, true).Count(&totalTriggered)

	successRate := decimal.Zero
	if totalCreated > 0 {
		successRate = decimal.NewFromInt(totalTriggered).
			Div(decimal.NewFromInt(totalCreated)).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts_by_type":  alertsByType,
		"recent_triggers": recentTriggers,
		"success_rate":    successRate.InexactFloat64(),
		"total_created":   totalCreated,
		"total_triggered": totalTriggered,
	})
}

// Chart returns daily trigger counts for the history chart
// GET /api/analytics/chart?days=30
func (ac *AnalyticsController) Chart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	startDate := time.Now().UTC().AddDate(0, 0, -days)

	type dailyCount struct {
		Date  string `json:"date"`
		Count int64  `json:"alerts"`
	}
	var daily []dailyCount
	if err := ac.db.Model(&models.Alert{}).
		Select("DATE(triggered_at) as date, count(id) as count").
		Where("user_id = ? AND triggered = ? AND triggered_at >= ?", userID, true, startDate).
		Group("DATE(triggered_at)").
		Order("date").
		Scan(&daily).Error; err != nil {
		log.Printf("Error loading chart data for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chart data"})
		return
	}

	c.JSON(http.StatusOK, daily)
}

// PopularTickers returns the most monitored tickers across all users
// GET /api/suggestions/tickers
func (ac *AnalyticsController) PopularTickers(c *gin.Context) {
	type tickerCount struct {
		Ticker string `json:"ticker"`
		Count  int64  `json:"count"`
	}
	var popular []tickerCount
	if err := ac.db.Model(&models.Alert{}).
		Select("ticker, count(id) as count").
		Where("is_active = ?", true).
		Group("ticker").
		Order("count DESC").
		Limit(10).
		Scan(&popular).Error; err != nil {
		log.Printf("Error loading popular tickers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load suggestions"})
		return
	}

	c.JSON(http.StatusOK, popular)
}

// SuggestedValues suggests target values based on similar active alerts
// GET /api/suggestions/values?ticker=PETR4&alert_type=price
func (ac *AnalyticsController) SuggestedValues(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	alertType := models.AlertType(c.Query("alert_type"))

	if ticker == "" || !alertType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker and a valid alert_type are required"})
		return
	}

	var values []float64
	if err := ac.db.Model(&models.Alert{}).
		Where("ticker = ? AND alert_type = ? AND is_active = ?", ticker, alertType, true).
		Pluck("target_value", &values).Error; err != nil {
		log.Printf("Error loading similar alerts for %s: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load suggestions"})
		return
	}

	if len(values) == 0 {
		c.JSON(http.StatusOK, gin.H{"suggestions": []float64{}})
		return
	}

	sum := decimal.Zero
	distinct := make(map[float64]bool, len(values))
	for _, value := range values {
		sum = sum.Add(decimal.NewFromFloat(value))
		distinct[value] = true
	}
	average := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2)

	suggestions := make([]float64, 0, len(distinct))
	for value := range distinct {
		suggestions = append(suggestions, value)
	}
	sort.Float64s(suggestions)
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}

	c.JSON(http.StatusOK, gin.H{
		"average":     average.InexactFloat64(),
		"suggestions": suggestions,
	})
}
