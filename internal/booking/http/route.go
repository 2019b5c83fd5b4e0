package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/bookings")

	// === Public Routes ===
	group.POST("", h.Create)

	// === Authenticated Routes ===
	authed := group.Group("")
	authed.Use(authMiddleware)
	{
		authed.GET("", h.List)
		authed.GET("/:id", h.Get)
		authed.DELETE("/:id", h.Cancel)
		authed.DELETE("/:id/purge", h.Purge)
		authed.POST("/:id/reschedule", h.Reschedule)
		authed.GET("/:id/sync", h.SyncStatus)
		authed.POST("/:id/sync", h.TriggerSync)
	}
}
