package routes

import (
	"github.com/gin-gonic/gin"

	"ride_tracker/internal/controllers"
	"ride_tracker/internal/middleware"
)

func RideRoutes(r *gin.Engine, rc *controllers.RideController, lc *controllers.LocationController) {
	rides := r.Group("/rides")
	rides.Use(middleware.RequireAuth())
	{
		rides.PUT("/:id", rc.SyncRide)
		rides.GET("/:id", rc.GetRide)
		rides.GET("/:id/driver-location", lc.DriverLocation)
		rides.GET("/:id/progress", lc.RouteProgress)
		rides.GET("/:id/eta", lc.ETA)
		rides.GET("/:id/gaps", lc.LocationGaps)
	}
}
