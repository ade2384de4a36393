package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gatilho_backend/config"
	"gatilho_backend/middleware"
	"gatilho_backend/models"
	"gatilho_backend/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "controllers_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateUserModels(db))
	require.NoError(t, models.MigrateAlertModels(db))

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		TokenExpireMinutes: 60,
	}

	authController := NewAuthController(db, cfg)
	alertController := NewAlertController(db)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/auth/signup", authController.Signup)
	api.POST("/auth/login", authController.Login)

	alerts := api.Group("/alerts")
	alerts.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	alerts.POST("", alertController.CreateAlert)
	alerts.GET("", alertController.ListAlerts)
	alerts.DELETE("/:id", alertController.DeleteAlert)

	return router, db, cfg
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func signupAndLogin(t *testing.T, router *gin.Engine, email string) string {
	t.Helper()

	resp := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     "Carla",
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "bearer", result.TokenType)
	require.NotEmpty(t, result.AccessToken)
	return result.AccessToken
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	router, _, _ := newTestRouter(t)

	signupAndLogin(t, router, "carla@example.com")

	resp := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     "Carla",
		"email":    "CARLA@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSignupRejectsShortPassword(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := doJSON(t, router, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     "Carla",
		"email":    "carla@example.com",
		"password": "12345",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	router, _, _ := newTestRouter(t)
	signupAndLogin(t, router, "carla@example.com")

	resp := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "carla@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateAndListAlerts(t *testing.T) {
	router, _, _ := newTestRouter(t)
	token := signupAndLogin(t, router, "carla@example.com")

	resp := doJSON(t, router, http.MethodPost, "/api/alerts", token, gin.H{
		"ticker":       "petr4",
		"alert_type":   "price",
		"condition":    ">=",
		"target_value": 38.00,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var created models.Alert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.Equal(t, "PETR4", created.Ticker, "ticker is stored uppercase")
	require.True(t, created.IsActive)
	require.False(t, created.Triggered)

	resp = doJSON(t, router, http.MethodGet, "/api/alerts", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var listed []models.Alert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, created.ID, listed[0].ID)
}

func TestCreateAlertValidatesEnums(t *testing.T) {
	router, _, _ := newTestRouter(t)
	token := signupAndLogin(t, router, "carla@example.com")

	tests := []struct {
		name string
		body gin.H
	}{
		{"bad alert type", gin.H{"ticker": "PETR4", "alert_type": "sentiment", "condition": ">", "target_value": 38.0}},
		{"bad condition", gin.H{"ticker": "PETR4", "alert_type": "price", "condition": "==", "target_value": 38.0}},
		{"missing ticker", gin.H{"alert_type": "price", "condition": ">", "target_value": 38.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, router, http.MethodPost, "/api/alerts", token, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestAlertsRequireAuthentication(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := doJSON(t, router, http.MethodGet, "/api/alerts", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestDeleteAlertDeactivates(t *testing.T) {
	router, db, _ := newTestRouter(t)
	token := signupAndLogin(t, router, "carla@example.com")

	resp := doJSON(t, router, http.MethodPost, "/api/alerts", token, gin.H{
		"ticker":       "PETR4",
		"alert_type":   "price",
		"condition":    ">",
		"target_value": 38.00,
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var created models.Alert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", created.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// Soft delete keeps the row for analytics
	var stored models.Alert
	require.NoError(t, db.First(&stored, created.ID).Error)
	require.False(t, stored.IsActive)

	resp = doJSON(t, router, http.MethodGet, "/api/alerts", token, nil)
	var listed []models.Alert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Empty(t, listed)
}

func TestDeleteAlertEnforcesOwnership(t *testing.T) {
	router, _, _ := newTestRouter(t)
	ownerToken := signupAndLogin(t, router, "carla@example.com")
	otherToken := signupAndLogin(t, router, "bruno@example.com")

	resp := doJSON(t, router, http.MethodPost, "/api/alerts", ownerToken, gin.H{
		"ticker":       "PETR4",
		"alert_type":   "price",
		"condition":    ">",
		"target_value": 38.00,
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var created models.Alert
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", created.ID), otherToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRecentTriggersWithoutArchive(t *testing.T) {
	_, db, _ := newTestRouter(t)

	cache := services.NewQuoteCache()
	market := services.NewMarketDataService("test-key", cache)
	notifier := services.NewEmailNotificationService("", "alerts@example.com")
	stream := services.NewAlertStreamService()
	t.Cleanup(stream.Shutdown)
	checker := services.NewAlertChecker(db, market, notifier, stream, nil)

	mc := NewMonitoringController(db, market, checker, stream, cache, nil)
	router := gin.New()
	router.GET("/api/monitoring/triggers", mc.RecentTriggers)

	resp := doJSON(t, router, http.MethodGet, "/api/monitoring/triggers", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Enabled  bool                     `json:"enabled"`
		Triggers []services.TriggerRecord `json:"triggers"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.False(t, result.Enabled)
	require.Empty(t, result.Triggers)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	router, db, cfg := newTestRouter(t)

	user := models.User{Email: "carla@example.com", HashedPassword: "x"}
	require.NoError(t, db.Create(&user).Error)

	expired, err := middleware.GenerateToken(user.ID, user.Email, cfg.JWTSecret, -time.Minute)
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodGet, "/api/alerts", expired, nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
