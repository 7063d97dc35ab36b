package routes

import (
	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"ride_tracker/internal/controllers"
)

// SetupRouter registers every surface on a fresh engine. Middleware has to be
// attached before the routes or gin will not apply it to them.
func SetupRouter(lc *controllers.LocationController, rc *controllers.RideController, wsc *controllers.WebSocketController) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginlog.SetLogger())

	LocationRoutes(r, lc)
	RideRoutes(r, rc, lc)
	AdminRoutes(r, lc)
	WebSocketRoutes(r, wsc)

	return r
}
