package tracking

import (
	"errors"
	"time"
)

// ErrInvalidCoordinate is returned by RecordFix for out-of-range latitude or
// longitude. Nothing is written to storage in that case.
var ErrInvalidCoordinate = errors.New("latitude must be in [-90,90] and longitude in [-180,180]")

// ErrMissingTimestamp is returned by RecordFix when the report carries no
// observation time.
var ErrMissingTimestamp = errors.New("fix timestamp is required")

// FixReport is one incoming GPS observation as reported by a device.
type FixReport struct {
	Latitude  float64   `json:"latitude" binding:"required"`
	Longitude float64   `json:"longitude" binding:"required"`
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Speed     *float64  `json:"speed,omitempty"`    // km/h
	Heading   *float64  `json:"heading,omitempty"`  // degrees [0,360)
	Accuracy  *float64  `json:"accuracy,omitempty"` // meters
}

// NearbyUser is one result of a proximity search: the latest known position
// of a user within the search radius.
type NearbyUser struct {
	UserID         string    `json:"user_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	DistanceMeters float64   `json:"distance_meters"`
	Timestamp      time.Time `json:"timestamp"`
}

// DriverLocation is the latest known position of a ride's driver.
type DriverLocation struct {
	RideID    string    `json:"ride_id"`
	DriverID  string    `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSnapshot is the position of a live fix relative to a planned route.
// ProgressFraction comes from projecting the fix onto the route line;
// DistanceFromStart and RemainingDistance come from straight-line distance
// against the ride's start point and distance estimate. The two views are
// deliberately not reconciled and can diverge on curved routes.
type ProgressSnapshot struct {
	ProgressFraction   float64 `json:"progress_fraction"`
	ProgressPercentage int     `json:"progress_percentage"`
	DistanceFromStart  float64 `json:"distance_from_start"`
	RemainingDistance  float64 `json:"remaining_distance"`
}

// ETAEstimate is an arrival estimate against the ride's next destination.
type ETAEstimate struct {
	EstimatedArrival     time.Time `json:"estimated_arrival"`
	RemainingDistance    float64   `json:"remaining_distance"`
	RemainingTimeMinutes int       `json:"remaining_time_minutes"`
}

// LocationCluster is a density grouping of recent fixes. Clusters are
// recomputed on every query and have no identity across calls.
type LocationCluster struct {
	ClusterID  int     `json:"cluster_id"`
	PointCount int     `json:"point_count"`
	UserCount  int     `json:"user_count"`
	CenterLat  float64 `json:"center_lat"`
	CenterLng  float64 `json:"center_lng"`
	MinLat     float64 `json:"min_lat"`
	MinLng     float64 `json:"min_lng"`
	MaxLat     float64 `json:"max_lat"`
	MaxLng     float64 `json:"max_lng"`
}

// AccuracyStats aggregates the horizontal accuracy of a user's fixes.
type AccuracyStats struct {
	AverageAccuracy *float64 `json:"average_accuracy"`
	MinAccuracy     *float64 `json:"min_accuracy"`
	MaxAccuracy     *float64 `json:"max_accuracy"`
	TotalReadings   int64    `json:"total_readings"`
}

// LocationGap marks a fix whose distance in time from the previous fix on the
// same ride exceeded the dropout threshold.
type LocationGap struct {
	FixID             string    `json:"fix_id"`
	Timestamp         time.Time `json:"timestamp"`
	PreviousTimestamp time.Time `json:"previous_timestamp"`
	GapMinutes        float64   `json:"gap_minutes"`
}
