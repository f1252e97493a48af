package app

import (
	"net/http"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookHandler applies completion notifications. It is the only writer of
// row status.
type WebhookHandler struct {
	Store RowStore
	Log   zerolog.Logger
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	var n models.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload", "error": err.Error()})
		return
	}

	count, err := h.Store.SetBatchStatus(c.Request.Context(), n.BatchID, n.Status)
	if err != nil {
		h.Log.Error().Err(err).Str("batch_id", n.BatchID).Msg("failed to apply notification")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error", "error": err.Error()})
		return
	}

	h.Log.Info().Str("batch_id", n.BatchID).Str("status", string(n.Status)).Int("rows", count).Msg("webhook applied")
	c.String(http.StatusOK, "Webhook received")
}
