package routes

import (
	"github.com/gin-gonic/gin"

	"school_bus/internal/controllers"
	"school_bus/internal/middleware"
)

func WebSocketRoutes(r *gin.Engine, h *controllers.Handler) {
	ws := r.Group("/ws")
	ws.Use(middleware.RequireAuthWithRole(middleware.RoleAdmin, middleware.RoleDriver))
	{
		ws.GET("/location", h.HandleLocationWebSocket)
	}
}
