package routes

import (
	"github.com/gin-gonic/gin"

	"ride_tracker/internal/controllers"
	"ride_tracker/internal/middleware"
)

func AdminRoutes(r *gin.Engine, lc *controllers.LocationController) {
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuthWithRole("admin"))
	{
		admin.POST("/location/cleanup", lc.CleanupOldLocations)
	}
}
