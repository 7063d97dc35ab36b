package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ride_tracker/internal/geo"
	"ride_tracker/internal/tracking"
)

// LocationController exposes the tracking engine over HTTP. Ingest normally
// arrives over the WebSocket channel; the POST endpoint exists for clients
// that batch or retry fixes without a live socket.
type LocationController struct {
	engine *tracking.Engine
}

func NewLocationController(engine *tracking.Engine) *LocationController {
	return &LocationController{engine: engine}
}

type recordFixInput struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Accuracy  *float64  `json:"accuracy"`
	RideID    *string   `json:"ride_id"`
}

// RecordFix appends one reported fix for the authenticated user.
func (lc *LocationController) RecordFix(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var input recordFixInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("RecordFix: invalid input payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	report := tracking.FixReport{
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Timestamp: input.Timestamp,
		Speed:     input.Speed,
		Heading:   input.Heading,
		Accuracy:  input.Accuracy,
	}
	if err := lc.engine.RecordFix(c.Request.Context(), userID, report, input.RideID); err != nil {
		if errors.Is(err, tracking.ErrInvalidCoordinate) || errors.Is(err, tracking.ErrMissingTimestamp) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).WithField("user_id", userID).Error("RecordFix: failed to store fix")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store fix"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}

// CurrentLocation returns the latest fix on the user's most recent ride.
// Defaults to the authenticated user; user_id query overrides for watchers.
func (lc *LocationController) CurrentLocation(c *gin.Context) {
	userID := c.DefaultQuery("user_id", c.MustGet("user_id").(string))

	fix, err := lc.engine.CurrentLocation(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("CurrentLocation: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}
	if fix == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No known location"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"location": fix})
}

// LocationHistory lists the user's fixes newest first, capped at 1000.
func (lc *LocationController) LocationHistory(c *gin.Context) {
	userID := c.DefaultQuery("user_id", c.MustGet("user_id").(string))

	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}

	var rideID *string
	if v := c.Query("ride_id"); v != "" {
		rideID = &v
	}

	fixes, err := lc.engine.LocationHistory(c.Request.Context(), userID, from, to, rideID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("LocationHistory: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": fixes, "count": len(fixes)})
}

// FindNearbyUsers searches for users with fresh fixes around a center point.
func (lc *LocationController) FindNearbyUsers(c *gin.Context) {
	lat, lng, ok := parseLatLng(c)
	if !ok {
		return
	}

	radius, ok := parseFloatQuery(c, "radius", 0)
	if !ok {
		return
	}

	nearby, err := lc.engine.FindNearbyUsers(
		c.Request.Context(),
		geo.Point{Lat: lat, Lng: lng},
		radius,
		c.Query("exclude_user_id"),
	)
	if err != nil {
		logrus.WithError(err).Error("FindNearbyUsers: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": nearby, "count": len(nearby)})
}

// DriverLocation returns the latest driver position for a ride.
func (lc *LocationController) DriverLocation(c *gin.Context) {
	rideID := c.Param("id")

	loc, err := lc.engine.DriverLocationForRide(c.Request.Context(), rideID)
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("DriverLocation: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}
	if loc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No driver location for ride"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"driver_location": loc})
}

// RouteProgress projects a live point onto the ride's planned route.
func (lc *LocationController) RouteProgress(c *gin.Context) {
	rideID := c.Param("id")
	lat, lng, ok := parseLatLng(c)
	if !ok {
		return
	}

	snapshot, err := lc.engine.TrackRouteProgress(c.Request.Context(), rideID, geo.Point{Lat: lat, Lng: lng})
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("RouteProgress: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride has no planned route"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": snapshot})
}

// ETA estimates arrival at the ride's next destination.
func (lc *LocationController) ETA(c *gin.Context) {
	rideID := c.Param("id")
	lat, lng, ok := parseLatLng(c)
	if !ok {
		return
	}
	speed, ok := parseFloatQuery(c, "average_speed", 0)
	if !ok {
		return
	}

	eta, err := lc.engine.CalculateETA(c.Request.Context(), rideID, geo.Point{Lat: lat, Lng: lng}, speed)
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("ETA: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}
	if eta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride has no destination"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"eta": eta})
}

// LocationClusters returns a density view of recent fixes for dashboards.
func (lc *LocationController) LocationClusters(c *gin.Context) {
	minLat, ok := parseFloatQuery(c, "min_lat", 0)
	if !ok {
		return
	}
	minLng, ok := parseFloatQuery(c, "min_lng", 0)
	if !ok {
		return
	}
	maxLat, ok := parseFloatQuery(c, "max_lat", 0)
	if !ok {
		return
	}
	maxLng, ok := parseFloatQuery(c, "max_lng", 0)
	if !ok {
		return
	}
	radius, ok := parseFloatQuery(c, "cluster_radius", 0)
	if !ok {
		return
	}

	bounds := geo.NewRect(geo.Point{Lat: minLat, Lng: minLng}, geo.Point{Lat: maxLat, Lng: maxLng})
	clusters, err := lc.engine.LocationClusters(c.Request.Context(), bounds, radius)
	if err != nil {
		logrus.WithError(err).Error("LocationClusters: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

// AccuracyStats aggregates fix accuracy for a user.
func (lc *LocationController) AccuracyStats(c *gin.Context) {
	userID := c.DefaultQuery("user_id", c.MustGet("user_id").(string))
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}

	stats, err := lc.engine.LocationAccuracyStats(c.Request.Context(), userID, from)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("AccuracyStats: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// LocationGaps reports tracking dropouts on a ride.
func (lc *LocationController) LocationGaps(c *gin.Context) {
	rideID := c.Param("id")
	maxGap, ok := parseFloatQuery(c, "max_gap_minutes", 0)
	if !ok {
		return
	}

	gaps, err := lc.engine.FindLocationGaps(c.Request.Context(), rideID, maxGap)
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("LocationGaps: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"gaps": gaps, "count": len(gaps)})
}

// CleanupOldLocations is the admin-triggered retention job.
func (lc *LocationController) CleanupOldLocations(c *gin.Context) {
	days := 0
	if v := c.Query("days_to_keep"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days_to_keep must be a positive integer"})
			return
		}
		days = parsed
	}

	deleted, err := lc.engine.CleanupOldLocations(c.Request.Context(), days)
	if err != nil {
		logrus.WithError(err).Error("CleanupOldLocations: delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// --- query parsing helpers ---

func parseLatLng(c *gin.Context) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat must be a number"})
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lng must be a number"})
		return 0, 0, false
	}
	return lat, lng, true
}

func parseFloatQuery(c *gin.Context, name string, fallback float64) (float64, bool) {
	v := c.Query(name)
	if v == "" {
		return fallback, true
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a number"})
		return 0, false
	}
	return parsed, true
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return nil, false
	}
	return &parsed, true
}
