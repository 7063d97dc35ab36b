package routes

import (
	"github.com/gin-gonic/gin"

	"ride_tracker/internal/controllers"
	"ride_tracker/internal/middleware"
)

func LocationRoutes(r *gin.Engine, lc *controllers.LocationController) {
	location := r.Group("/location")
	location.Use(middleware.RequireAuth())
	{
		location.POST("/", lc.RecordFix)
		location.GET("/current", lc.CurrentLocation)
		location.GET("/history", lc.LocationHistory)
		location.GET("/nearby", lc.FindNearbyUsers)
		location.GET("/accuracy", lc.AccuracyStats)
		location.GET("/clusters", lc.LocationClusters)
	}
}
