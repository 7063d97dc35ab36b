package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ride_tracker/internal/models"
	"ride_tracker/internal/tracking"
)

// RideDirectory reads ride reference data synced from the ride collaborator.
type RideDirectory struct {
	db *gorm.DB
}

// NewRideDirectory wraps the database handle.
func NewRideDirectory(db *gorm.DB) *RideDirectory {
	return &RideDirectory{db: db}
}

var _ tracking.RideDirectory = (*RideDirectory)(nil)

func (r *RideDirectory) RideByID(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	err := r.db.WithContext(ctx).First(&ride, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (r *RideDirectory) LatestRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	var ride models.Ride
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("created_at DESC").
		First(&ride).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (r *RideDirectory) RideIDsForDriver(ctx context.Context, driverID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&models.Ride{}).
		Where("driver_id = ?", driverID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *RideDirectory) DropoffPoints(ctx context.Context, rideID string) ([]models.RoutePoint, error) {
	points := []models.RoutePoint{}
	err := r.db.WithContext(ctx).
		Where("ride_id = ? AND is_dropoff = ?", rideID, true).
		Order("seq ASC").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

// SyncRide upserts a ride and replaces its route points in one transaction.
// Called when the ride collaborator pushes fresh reference data.
func (r *RideDirectory) SyncRide(ctx context.Context, ride *models.Ride, points []models.RoutePoint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(ride).Error; err != nil {
			return err
		}
		if err := tx.Where("ride_id = ?", ride.ID).Delete(&models.RoutePoint{}).Error; err != nil {
			return err
		}
		for i := range points {
			points[i].RideID = ride.ID
		}
		if len(points) > 0 {
			if err := tx.Create(&points).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
