package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	// === Public Routes ===
	g.GET("/hosts/:id/availability", h.ListPublic)

	// === Authenticated Routes ===
	group := g.Group("/availability")
	group.Use(authMiddleware)
	{
		group.POST("", h.Create)
		group.GET("", h.ListOwn)
		group.DELETE("/:id", h.Delete)
	}
}
