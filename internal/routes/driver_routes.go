package routes

import (
	"github.com/gin-gonic/gin"

	"school_bus/internal/controllers"
	"school_bus/internal/middleware"
)

// DeviceRoutes serves the driver devices: the phone app and the RFID
// reader/writer on the bus.
func DeviceRoutes(r *gin.Engine, h *controllers.Handler) {
	device := r.Group("/device")
	device.Use(middleware.RequireAuthWithRole(middleware.RoleDriver))
	{
		device.GET("/me", h.DeviceProfile)
		device.POST("/trips/start", h.StartTrip)
		device.POST("/trips/end", h.EndTrip)
		device.POST("/scans", h.RecordScan)
		device.POST("/stops", h.AddStop)
		device.POST("/rfid/write", h.ReportTagWrite)
	}
}
