package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	// Signature verification stands in for user auth on this surface.
	g.POST("/webhooks/:provider", h.Receive)
}
