package controllers

import (
	"net/http"

	"gatilho_backend/config"
	"gatilho_backend/middleware"
	"gatilho_backend/services"

	"github.com/gin-gonic/gin"
)

// StreamController upgrades authenticated clients onto the alert stream
type StreamController struct {
	stream *services.AlertStreamService
	cfg    *config.Config
}

// NewStreamController creates a new stream controller
func NewStreamController(stream *services.AlertStreamService, cfg *config.Config) *StreamController {
	return &StreamController{stream: stream, cfg: cfg}
}

// Connect authenticates via the token query parameter (browsers cannot set
// headers on WebSocket upgrades) and hands the connection to the hub.
// GET /ws?token=<jwt>
func (sc *StreamController) Connect(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token query parameter is required"})
		return
	}

	claims, err := middleware.ParseToken(tokenString, sc.cfg.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	userID, err := middleware.UserIDFromClaims(claims)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}

	sc.stream.HandleConnection(c.Writer, c.Request, userID)
}
