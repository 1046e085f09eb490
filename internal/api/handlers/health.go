package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Root handles `GET /`: an unauthenticated liveness probe for load
// balancers.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Kiro Gateway is running",
		"version": Version,
	})
}

// Health handles `GET /health`: an unauthenticated, slightly more detailed
// liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}
