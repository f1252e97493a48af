// Package app holds the batch image pipeline and the HTTP surfaces shared by
// the local binaries and the Lambda entrypoints.
package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the public API router for both local and Lambda execution.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
	if s.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = s.MaxUploadBytes
	}

	router.GET("/health", Health)

	api := router.Group("/api/v1")
	api.POST("/parse", s.Upload)
	api.GET("/status/:batchId", s.Status)

	return router
}

// NewWebhookRouter builds the listener that receives completion notifications.
func NewWebhookRouter(h *WebhookHandler) *gin.Engine {
	router := gin.Default()
	router.GET("/health", Health)
	router.POST("/webhook", h.Receive)
	return router
}
