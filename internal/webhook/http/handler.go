package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/response"
	"github.com/gravityfall/calendar-booking-backend/internal/webhook"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

type Handler struct {
	service webhook.Service
	logger  *logging.Logger
}

func NewHandler(service webhook.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger.Named("webhook.http")}
}

// Receive ingests a provider change notification. The signature is verified
// over the raw body before any parsing happens.
func (h *Handler) Receive(c *gin.Context) {
	provider, err := calendar.ParseType(c.Param("provider"))
	if err != nil {
		response.Error(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := h.service.VerifySignature(body, c.GetHeader(SignatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", "provider", provider)
		response.Error(c, err)
		return
	}

	var payload webhook.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, webhook.ErrInvalidPayload)
		return
	}

	outcome, err := h.service.Process(c.Request.Context(), provider, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}
