package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/connections")

	// === Public Routes ===
	// The provider redirects here after consent; auth happens at Complete.
	group.GET("/:provider/callback", h.Callback)

	// === Authenticated Routes ===
	authed := group.Group("")
	authed.Use(authMiddleware)
	{
		authed.GET("", h.List)
		authed.GET("/:provider/authorize", h.Authorize)
		authed.POST("/complete", h.Complete)
		authed.DELETE("/:provider", h.Disconnect)
	}
}
