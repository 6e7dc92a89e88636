package routes

import (
	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"school_bus/internal/controllers"
	"school_bus/internal/logger"
)

// SetupRouter wires every route group onto a new engine.
func SetupRouter(h *controllers.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginlog.SetLogger(
		ginlog.WithWriter(logger.Writer()),
		ginlog.WithUTC(true),
		ginlog.WithSkipPath([]string{"/healthz"}),
	))

	r.GET("/healthz", h.Healthz)
	AuthRoutes(r, h)
	AdminRoutes(r, h)
	DeviceRoutes(r, h)
	WebSocketRoutes(r, h)
	return r
}
