package controllers

import (
	"context"
	"encoding/binary"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"ride_tracker/internal/models"
)

// RideStore is the slice of the ride directory the controller needs.
type RideStore interface {
	RideByID(ctx context.Context, id string) (*models.Ride, error)
	SyncRide(ctx context.Context, ride *models.Ride, points []models.RoutePoint) error
}

// RideController ingests ride reference data pushed by the ride collaborator.
// The tracker never creates rides of its own; it mirrors what the ride
// domain tells it so projection and ETA queries have geometry to work with.
type RideController struct {
	store RideStore
}

func NewRideController(store RideStore) *RideController {
	return &RideController{store: store}
}

// rideResponse mirrors models.Ride with the geometry as a GeoJSON string.
type rideResponse struct {
	ID                string              `json:"id"`
	DriverID          string              `json:"driver_id"`
	StartLat          float64             `json:"start_lat"`
	StartLng          float64             `json:"start_lng"`
	EndLat            *float64            `json:"end_lat,omitempty"`
	EndLng            *float64            `json:"end_lng,omitempty"`
	EstimatedDistance float64             `json:"estimated_distance"`
	Geometry          string              `json:"geometry"`
	CreatedAt         time.Time           `json:"created_at"`
	RoutePoints       []models.RoutePoint `json:"route_points,omitempty"`
}

func toRideResponse(ride models.Ride) rideResponse {
	jsonGeom, _ := convertWKBToGeoJSON(ride.PlannedRoute)
	return rideResponse{
		ID:                ride.ID,
		DriverID:          ride.DriverID,
		StartLat:          ride.StartLat,
		StartLng:          ride.StartLng,
		EndLat:            ride.EndLat,
		EndLng:            ride.EndLng,
		EstimatedDistance: ride.EstimatedDistance,
		Geometry:          jsonGeom,
		CreatedAt:         ride.CreatedAt,
		RoutePoints:       ride.RoutePoints,
	}
}

// parseAndConvertGeometry parses a GeoJSON string into a geom.T and returns WKB bytes
func parseAndConvertGeometry(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	var g geom.T
	err := gjson.Unmarshal([]byte(raw), &g)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(g, binary.LittleEndian)
}

// convertWKBToGeoJSON converts WKB bytes into a GeoJSON string
func convertWKBToGeoJSON(wkbBytes []byte) (string, error) {
	if len(wkbBytes) == 0 {
		return "", nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type syncRideInput struct {
	DriverID          string   `json:"driver_id" binding:"required"`
	StartLat          float64  `json:"start_lat" binding:"required"`
	StartLng          float64  `json:"start_lng" binding:"required"`
	EndLat            *float64 `json:"end_lat"`
	EndLng            *float64 `json:"end_lng"`
	EstimatedDistance float64  `json:"estimated_distance"`
	Geometry          string   `json:"geometry"` // GeoJSON LineString
	CreatedAt         *time.Time `json:"created_at"`
	RoutePoints       []struct {
		Seq       int     `json:"seq"`
		Lat       float64 `json:"lat"`
		Lng       float64 `json:"lng"`
		Address   string  `json:"address"`
		IsPickup  bool    `json:"is_pickup"`
		IsDropoff bool    `json:"is_dropoff"`
	} `json:"route_points"`
}

// SyncRide upserts a ride's reference data (geometry, endpoints, stops).
func (rc *RideController) SyncRide(c *gin.Context) {
	rideID := c.Param("id")

	var input syncRideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("SyncRide: invalid input payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	wkbGeom, err := parseAndConvertGeometry(input.Geometry)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geometry: " + err.Error()})
		return
	}

	createdAt := time.Now().UTC()
	if input.CreatedAt != nil {
		createdAt = input.CreatedAt.UTC()
	}

	ride := models.Ride{
		ID:                rideID,
		DriverID:          input.DriverID,
		StartLat:          input.StartLat,
		StartLng:          input.StartLng,
		EndLat:            input.EndLat,
		EndLng:            input.EndLng,
		EstimatedDistance: input.EstimatedDistance,
		PlannedRoute:      wkbGeom,
		CreatedAt:         createdAt,
	}

	points := make([]models.RoutePoint, 0, len(input.RoutePoints))
	for _, p := range input.RoutePoints {
		points = append(points, models.RoutePoint{
			RideID:    rideID,
			Seq:       p.Seq,
			Lat:       p.Lat,
			Lng:       p.Lng,
			Address:   p.Address,
			IsPickup:  p.IsPickup,
			IsDropoff: p.IsDropoff,
		})
	}

	if err := rc.store.SyncRide(c.Request.Context(), &ride, points); err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("SyncRide: store failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed: " + err.Error()})
		return
	}

	ride.RoutePoints = points
	c.JSON(http.StatusOK, gin.H{"ride": toRideResponse(ride)})
}

// GetRide returns a ride's mirrored reference data.
func (rc *RideController) GetRide(c *gin.Context) {
	rideID := c.Param("id")

	ride, err := rc.store.RideByID(c.Request.Context(), rideID)
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("GetRide: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query failed"})
		return
	}
	if ride == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ride": toRideResponse(*ride)})
}
