package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
)

// maxWebhookBody caps a delivery at 1 MiB; provider events are a few KB.
const maxWebhookBody = 1 << 20

// HandleWebhook processes a provider delivery. Unverifiable or malformed
// deliveries get 400 and are never processed; handler failures get 500 so
// the provider's retry redelivers the event.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		webhookEvents.WithLabelValues(provider, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "invalid_payload"}})
		return
	}

	err = s.webhookSvc.Process(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		webhookEvents.WithLabelValues(provider, "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
		webhookEvents.WithLabelValues(provider, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": err.Error()}})
	default:
		webhookEvents.WithLabelValues(provider, "failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "processing_failed"}})
	}
}
