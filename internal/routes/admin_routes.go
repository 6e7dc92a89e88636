package routes

import (
	"github.com/gin-gonic/gin"

	"school_bus/internal/controllers"
	"school_bus/internal/middleware"
)

// AdminRoutes serves the school admin app. The organization comes from the
// token.
func AdminRoutes(r *gin.Engine, h *controllers.Handler) {
	api := r.Group("/api")
	api.Use(middleware.RequireAuthWithRole(middleware.RoleAdmin))

	students := api.Group("/students")
	{
		students.POST("", h.CreateStudent)
		students.GET("", h.ListStudents)
		students.GET("/:roll", h.GetStudent)
		students.PUT("/:roll", h.UpdateStudent)
		students.DELETE("/:roll", h.DeleteStudent)
		students.PUT("/:roll/stop", h.SetStudentStop)
		students.PUT("/:roll/bus", h.SetStudentBus)
		students.POST("/:roll/photo", h.UploadStudentPhoto)
		students.POST("/:roll/payments", h.RecordPayment)
		students.GET("/:roll/payments", h.ListPayments)
		students.POST("/:roll/fee-reset", h.ResetStudentFees)
	}

	drivers := api.Group("/drivers")
	{
		drivers.POST("", h.CreateDriver)
		drivers.GET("", h.ListDrivers)
		drivers.GET("/:license", h.GetDriver)
		drivers.PUT("/:license", h.UpdateDriver)
		drivers.DELETE("/:license", h.DeleteDriver)
		drivers.PUT("/:license/bus", h.SetDriverBus)
		drivers.POST("/:license/photo", h.UploadDriverPhoto)
	}

	buses := api.Group("/buses")
	{
		buses.POST("", h.CreateBus)
		buses.GET("", h.ListBuses)
		buses.GET("/:id", h.GetBus)
		buses.PUT("/:id", h.UpdateBus)
		buses.DELETE("/:id", h.DeleteBus)
		buses.PUT("/:id/driver", h.SetBusDriver)
		buses.PUT("/:id/route", h.SetBusRoute)
		buses.POST("/:id/recalculate-seats", h.RecalculateSeats)
		buses.GET("/:id/boarded", h.Boarded)
		buses.GET("/:id/locations", h.BusLocations)
		buses.GET("/:id/trips", h.BusTrips)
	}

	routes := api.Group("/routes")
	{
		routes.POST("", h.CreateRoute)
		routes.GET("", h.ListRoutes)
		routes.GET("/:id", h.GetRoute)
		routes.PUT("/:id", h.UpdateRoute)
		routes.DELETE("/:id", h.DeleteRoute)
		routes.PUT("/:id/bus", h.SetRouteBus)
		routes.PUT("/:id/stops", h.SetRouteStops)
	}

	stops := api.Group("/stops")
	{
		stops.POST("", h.CreateStop)
		stops.GET("", h.ListStops)
		stops.GET("/:id", h.GetStop)
		stops.PUT("/:id", h.UpdateStop)
		stops.DELETE("/:id", h.DeleteStop)
	}

	api.POST("/fees/reset", h.ResetFeeCycle)
	api.POST("/rfid/write", h.RequestTagWrite)
	api.GET("/rfid/write/status", h.TagWriteStatus)
	api.POST("/devices/token", h.IssueDeviceToken)
}
