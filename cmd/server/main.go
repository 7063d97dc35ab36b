package main

import (
	"log"
	"net/http"
	"os"

	"ride_tracker/internal/config"
	"ride_tracker/internal/controllers"
	"ride_tracker/internal/logger"
	"ride_tracker/internal/middleware"
	"ride_tracker/internal/routes"
	"ride_tracker/internal/store/gormstore"
	"ride_tracker/internal/tracking"
)

func main() {
	// Initialize structured logging to file
	logger.Setup()

	// Connect to the database
	config.InitDB()

	db := config.GetDB()
	engine := tracking.NewEngine(gormstore.NewFixStore(db), gormstore.NewRideDirectory(db))

	lc := controllers.NewLocationController(engine)
	rc := controllers.NewRideController(gormstore.NewRideDirectory(db))
	wsc := controllers.NewWebSocketController(engine)

	// Setup Gin router
	r := routes.SetupRouter(lc, rc, wsc)

	// Wrap with CORS
	handler := middleware.EnableCORS(r)

	addr := "0.0.0.0:" + getPort()
	log.Printf("Tracker listening at %s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}
