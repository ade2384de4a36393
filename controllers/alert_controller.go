package controllers

import (
	"log"
	"net/http"
	"strings"

	"gatilho_backend/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AlertController handles alert CRUD requests
type AlertController struct {
	db *gorm.DB
}

// NewAlertController creates a new alert controller
func NewAlertController(db *gorm.DB) *AlertController {
	return &AlertController{db: db}
}

// currentUserID returns the authenticated user id set by the JWT middleware
func currentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

// CreateAlert creates a new alert for the authenticated user
// POST /api/alerts
func (ac *AlertController) CreateAlert(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request struct {
		Ticker      string           `json:"ticker" binding:"required"`
		AlertType   models.AlertType `json:"alert_type" binding:"required"`
		Condition   models.Condition `json:"condition" binding:"required"`
		TargetValue float64          `json:"target_value" binding:"required"`
	}

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !request.AlertType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert type. Use: price, percentage, volume"})
		return
	}
	if !request.Condition.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid condition. Use: >, <, >=, <="})
		return
	}

	alert := models.Alert{
		UserID:      userID,
		Ticker:      strings.ToUpper(strings.TrimSpace(request.Ticker)),
		AlertType:   request.AlertType,
		Condition:   request.Condition,
		TargetValue: request.TargetValue,
		IsActive:    true,
	}

	if err := ac.db.Create(&alert).Error; err != nil {
		log.Printf("Error creating alert: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, alert)
}

// ListAlerts returns the authenticated user's active alerts, newest first
// GET /api/alerts
func (ac *AlertController) ListAlerts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var alerts []models.Alert
	if err := ac.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		log.Printf("Error listing alerts for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// DeleteAlert soft-deletes an alert by deactivating it
// DELETE /api/alerts/:id
func (ac *AlertController) DeleteAlert(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var alert models.Alert
	if err := ac.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&alert).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return
	}

	if err := ac.db.Model(&alert).Update("is_active", false).Error; err != nil {
		log.Printf("Error deactivating alert %d: %v", alert.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Alert removed successfully",
		"alert_id": alert.ID,
	})
}
