package routes

import (
	"github.com/gin-gonic/gin"

	"ride_tracker/internal/controllers"
)

func WebSocketRoutes(r *gin.Engine, wsc *controllers.WebSocketController) {
	ws := r.Group("/ws")
	{
		ws.GET("/location", wsc.HandleLocationWebSocket)
	}
}
