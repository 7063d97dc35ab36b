package models

import (
	"time"
)

// Ride is reference data owned by the ride collaborator and synced into the
// tracker read-only. The tracking engine never mutates rides; it only reads
// the planned geometry and the start/end points.
type Ride struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	DriverID string `json:"driver_id" gorm:"index;not null"`

	StartLat float64 `json:"start_lat"`
	StartLng float64 `json:"start_lng"`

	// End point is optional while the ride collaborator is still resolving
	// the dropoff address.
	EndLat *float64 `json:"end_lat,omitempty"`
	EndLng *float64 `json:"end_lng,omitempty"`

	// EstimatedDistance is the collaborator's route length estimate in meters.
	EstimatedDistance float64 `json:"estimated_distance"`

	// Geometry stored as a WKB LINESTRING (SRID 4326).
	// The API accepts and returns GeoJSON; conversion happens at the edge.
	PlannedRoute []byte `json:"-" gorm:"type:bytea"`

	CreatedAt time.Time `json:"created_at"`

	RoutePoints []RoutePoint `gorm:"foreignKey:RideID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"route_points,omitempty"`
}

func (Ride) TableName() string {
	return "rides"
}
