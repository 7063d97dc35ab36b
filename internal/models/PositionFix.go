package models

import (
	"time"
)

// PositionFix is one reported GPS observation. Rows are append-only: they are
// created by ingest, never updated, and removed only by retention cleanup.
type PositionFix struct {
	ID     string  `json:"id" gorm:"primaryKey;size:36"`
	UserID string  `json:"user_id" gorm:"index;not null"`
	RideID *string `json:"ride_id,omitempty" gorm:"uniqueIndex:idx_ride_order,priority:1"`

	Latitude  float64 `json:"latitude" gorm:"not null"`
	Longitude float64 `json:"longitude" gorm:"not null"`

	// Optional sensor readings as reported by the device.
	Speed    *float64 `json:"speed,omitempty"`    // km/h
	Heading  *float64 `json:"heading,omitempty"`  // degrees [0,360)
	Accuracy *float64 `json:"accuracy,omitempty"` // horizontal accuracy in meters

	Timestamp time.Time `json:"timestamp" gorm:"index;not null"`

	// Order is the per-ride ingestion sequence. It is strictly increasing
	// within a ride and is the sequencing source of truth; timestamps may
	// arrive out of order and are stored as reported.
	Order int64 `json:"order" gorm:"column:order;uniqueIndex:idx_ride_order,priority:2;not null"`
}

func (PositionFix) TableName() string {
	return "position_fixes"
}
