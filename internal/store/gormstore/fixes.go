// Package gormstore implements the tracking storage interfaces on top of
// GORM. It runs against Postgres (with PostGIS, the production profile) or
// SQLite (dev); driver differences are confined to this package.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"ride_tracker/internal/geo"
	"ride_tracker/internal/models"
	"ride_tracker/internal/tracking"
)

const appendAttempts = 3

// FixStore persists position fixes through a gorm handle.
type FixStore struct {
	db       *gorm.DB
	postgres bool
}

// NewFixStore wraps the database handle.
func NewFixStore(db *gorm.DB) *FixStore {
	return &FixStore{db: db, postgres: db.Dialector.Name() == "postgres"}
}

var _ tracking.FixStore = (*FixStore)(nil)

// AppendFix inserts the fix with its per-ride order computed inside the
// INSERT itself, so concurrent ingests for the same ride race on the
// (ride_id, order) unique index instead of silently sharing an order. A
// losing insert hits the unique violation and is retried with a fresh
// max+1.
func (s *FixStore) AppendFix(ctx context.Context, fix *models.PositionFix) error {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		order, err := s.insertFix(ctx, fix)
		if err == nil {
			fix.Order = order
			return nil
		}
		if !isDuplicateOrder(err) {
			return err
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{
			"fix_id":  fix.ID,
			"attempt": attempt + 1,
		}).Debug("Concurrent ingest raced on sequence order, retrying.")
	}
	return fmt.Errorf("append fix %s: %w", fix.ID, lastErr)
}

func (s *FixStore) insertFix(ctx context.Context, fix *models.PositionFix) (int64, error) {
	var order int64
	var err error

	if s.postgres {
		ewkt := fmt.Sprintf("SRID=4326;POINT(%f %f)", fix.Longitude, fix.Latitude)
		err = s.db.WithContext(ctx).Raw(`
			INSERT INTO position_fixes
				(id, user_id, ride_id, latitude, longitude, speed, heading, accuracy, timestamp, "order", geom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
				(SELECT COALESCE(MAX("order"), 0) + 1 FROM position_fixes WHERE ride_id IS NOT DISTINCT FROM ?),
				ST_GeomFromEWKT(?))
			RETURNING "order"`,
			fix.ID, fix.UserID, fix.RideID, fix.Latitude, fix.Longitude,
			fix.Speed, fix.Heading, fix.Accuracy, fix.Timestamp, fix.RideID, ewkt,
		).Scan(&order).Error
	} else {
		err = s.db.WithContext(ctx).Raw(`
			INSERT INTO position_fixes
				(id, user_id, ride_id, latitude, longitude, speed, heading, accuracy, timestamp, "order")
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
				(SELECT COALESCE(MAX("order"), 0) + 1 FROM position_fixes WHERE ride_id IS ?))
			RETURNING "order"`,
			fix.ID, fix.UserID, fix.RideID, fix.Latitude, fix.Longitude,
			fix.Speed, fix.Heading, fix.Accuracy, fix.Timestamp, fix.RideID,
		).Scan(&order).Error
	}

	return order, err
}

func isDuplicateOrder(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *FixStore) LatestFixForRide(ctx context.Context, rideID string) (*models.PositionFix, error) {
	var fix models.PositionFix
	err := s.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order(`timestamp DESC, "order" DESC`).
		First(&fix).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fix, nil
}

func (s *FixStore) ListFixes(ctx context.Context, q tracking.FixQuery) ([]models.PositionFix, error) {
	tx := s.db.WithContext(ctx).Where("ride_id IN ?", q.RideIDs)
	if q.From != nil {
		tx = tx.Where("timestamp >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("timestamp <= ?", *q.To)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	fixes := []models.PositionFix{}
	if err := tx.Order(`timestamp DESC, "order" DESC`).Find(&fixes).Error; err != nil {
		return nil, err
	}
	return fixes, nil
}

func (s *FixStore) FixesForRideByTime(ctx context.Context, rideID string) ([]models.PositionFix, error) {
	fixes := []models.PositionFix{}
	err := s.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order(`timestamp ASC, "order" ASC`).
		Find(&fixes).Error
	if err != nil {
		return nil, err
	}
	return fixes, nil
}

func (s *FixStore) LatestFixPerRideSince(ctx context.Context, since time.Time) ([]models.PositionFix, error) {
	fixes := []models.PositionFix{}
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, ride_id, latitude, longitude, speed, heading, accuracy, timestamp, "order"
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY ride_id ORDER BY timestamp DESC, "order" DESC) AS rn
			FROM position_fixes
			WHERE ride_id IS NOT NULL
		) latest
		WHERE rn = 1 AND timestamp >= ?`,
		since,
	).Scan(&fixes).Error
	if err != nil {
		return nil, err
	}
	return fixes, nil
}

func (s *FixStore) FixesWithinRectSince(ctx context.Context, rect geo.Rect, since time.Time) ([]models.PositionFix, error) {
	fixes := []models.PositionFix{}

	if s.postgres {
		// The bbox operator uses the spatial index on geom.
		err := s.db.WithContext(ctx).Raw(`
			SELECT id, user_id, ride_id, latitude, longitude, speed, heading, accuracy, timestamp, "order"
			FROM position_fixes
			WHERE geom && ST_MakeEnvelope(?, ?, ?, ?, 4326) AND timestamp >= ?`,
			rect.MinLng, rect.MinLat, rect.MaxLng, rect.MaxLat, since,
		).Scan(&fixes).Error
		if err != nil {
			return nil, err
		}
		return fixes, nil
	}

	err := s.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", rect.MinLat, rect.MaxLat).
		Where("longitude BETWEEN ? AND ?", rect.MinLng, rect.MaxLng).
		Where("timestamp >= ?", since).
		Find(&fixes).Error
	if err != nil {
		return nil, err
	}
	return fixes, nil
}

func (s *FixStore) DeleteFixesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.PositionFix{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (s *FixStore) AccuracyStats(ctx context.Context, rideIDs []string, from *time.Time) (tracking.AccuracyStats, error) {
	var row struct {
		Avg   *float64
		Min   *float64
		Max   *float64
		Count int64
	}

	tx := s.db.WithContext(ctx).
		Model(&models.PositionFix{}).
		Select("AVG(accuracy) AS avg, MIN(accuracy) AS min, MAX(accuracy) AS max, COUNT(accuracy) AS count").
		Where("ride_id IN ?", rideIDs).
		Where("accuracy IS NOT NULL")
	if from != nil {
		tx = tx.Where("timestamp >= ?", *from)
	}
	if err := tx.Scan(&row).Error; err != nil {
		return tracking.AccuracyStats{}, err
	}

	return tracking.AccuracyStats{
		AverageAccuracy: row.Avg,
		MinAccuracy:     row.Min,
		MaxAccuracy:     row.Max,
		TotalReadings:   row.Count,
	}, nil
}
