package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/gravityfall/calendar-booking-backend/internal/auth"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/response"
)

type Handler struct {
	service      connection.Service
	oauthConfigs map[calendar.Type]*oauth2.Config
	logger       *logging.Logger
}

func NewHandler(service connection.Service, oauthConfigs map[calendar.Type]*oauth2.Config, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:      service,
		oauthConfigs: oauthConfigs,
		logger:       logger.Named("connection.http"),
	}
}

func (h *Handler) List(c *gin.Context) {
	conns, err := h.service.ListForHost(c.Request.Context(), auth.GetHostID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]ConnectionResponse, len(conns))
	for i, conn := range conns {
		items[i] = NewConnectionResponse(conn)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Authorize starts the OAuth flow by redirecting the host to the provider's
// consent screen. The host ID rides along as state and ties the callback
// back to this account.
func (h *Handler) Authorize(c *gin.Context) {
	provider, ok := h.provider(c)
	if !ok {
		return
	}

	cfg, ok := h.oauthConfigs[provider]
	if !ok {
		response.Error(c, calendar.ErrUnsupportedProvider)
		return
	}

	url := cfg.AuthCodeURL(auth.GetHostID(c), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{"authorization_url": url})
}

// Callback receives the provider redirect, exchanges the code and stages the
// tokens. It is unauthenticated by nature; nothing activates until the host
// claims the pending ID through Complete within its TTL.
func (h *Handler) Callback(c *gin.Context) {
	provider, ok := h.provider(c)
	if !ok {
		return
	}

	cfg, ok := h.oauthConfigs[provider]
	if !ok {
		response.Error(c, calendar.ErrUnsupportedProvider)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	token, err := cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", "provider", provider, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	req := connection.CreatePendingRequest{
		AccessToken: token.AccessToken,
		Scope:       strings.Join(cfg.Scopes, " "),
	}
	if token.RefreshToken != "" {
		rt := token.RefreshToken
		req.RefreshToken = &rt
	}
	if state := c.Query("state"); state != "" {
		if _, err := uuid.Parse(state); err == nil {
			hostID := state
			req.HostID = &hostID
		}
	}

	pendingID, err := h.service.CreatePending(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending_id": pendingID})
}

// Complete consumes the staged tokens and activates the connection.
func (h *Handler) Complete(c *gin.Context) {
	var body CompleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	provider, err := calendar.ParseType(body.Provider)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.service.Complete(c.Request.Context(), body.PendingID, auth.GetHostID(c), provider)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewConnectionResponse(conn))
}

func (h *Handler) Disconnect(c *gin.Context) {
	provider, ok := h.provider(c)
	if !ok {
		return
	}

	if err := h.service.Disconnect(c.Request.Context(), auth.GetHostID(c), provider); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) provider(c *gin.Context) (calendar.Type, bool) {
	provider, err := calendar.ParseType(c.Param("provider"))
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	return provider, true
}
