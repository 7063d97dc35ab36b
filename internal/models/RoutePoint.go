package models

import (
	"gorm.io/gorm"
)

// RoutePoint represents a stop along a ride's planned route.
// Seq indicates order; pickup/dropoff flags say what happens at the stop.
type RoutePoint struct {
	gorm.Model

	RideID  string  `json:"ride_id" gorm:"index;not null"`
	Seq     int     `json:"seq" binding:"required"`
	Lat     float64 `json:"lat" binding:"required"`
	Lng     float64 `json:"lng" binding:"required"`
	Address string  `json:"address"`

	IsPickup  bool `json:"is_pickup"`
	IsDropoff bool `json:"is_dropoff"`
}
