package tracking

import (
	"context"
	"time"

	"ride_tracker/internal/geo"
	"ride_tracker/internal/models"
)

// FixQuery narrows a fix listing. Time bounds are inclusive; results are
// newest first, capped at Limit when Limit > 0.
type FixQuery struct {
	RideIDs []string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// FixStore is the storage capability the engine needs for position fixes.
// Implementations must make AppendFix's order assignment atomic with respect
// to concurrent appends for the same ride: two concurrent appends must never
// commit the same (ride, order) pair.
type FixStore interface {
	// AppendFix persists the fix, assigning fix.Order = max(order)+1 within
	// the fix's ride as a single atomic step.
	AppendFix(ctx context.Context, fix *models.PositionFix) error

	// LatestFixForRide returns the ride's most recent fix by timestamp,
	// or nil if the ride has none.
	LatestFixForRide(ctx context.Context, rideID string) (*models.PositionFix, error)

	// ListFixes returns fixes matching the query, newest first.
	ListFixes(ctx context.Context, q FixQuery) ([]models.PositionFix, error)

	// FixesForRideByTime returns all of a ride's fixes ordered by timestamp
	// ascending (ties by insertion order).
	FixesForRideByTime(ctx context.Context, rideID string) ([]models.PositionFix, error)

	// LatestFixPerRideSince returns, for every ride with at least one fix at
	// or after since, that ride's single most recent fix.
	LatestFixPerRideSince(ctx context.Context, since time.Time) ([]models.PositionFix, error)

	// FixesWithinRectSince returns all fixes inside the bounding box reported
	// at or after since.
	FixesWithinRectSince(ctx context.Context, rect geo.Rect, since time.Time) ([]models.PositionFix, error)

	// DeleteFixesBefore removes fixes older than cutoff and returns how many
	// rows were deleted.
	DeleteFixesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// AccuracyStats aggregates the accuracy column over fixes belonging to
	// the given rides, optionally bounded below in time. Fixes without an
	// accuracy reading do not participate.
	AccuracyStats(ctx context.Context, rideIDs []string, from *time.Time) (AccuracyStats, error)
}

// RideDirectory is the read-only view of the ride collaborator's data.
type RideDirectory interface {
	// RideByID returns the ride, or nil if it does not exist.
	RideByID(ctx context.Context, id string) (*models.Ride, error)

	// LatestRideForDriver returns the driver's most recently created ride,
	// or nil if the driver has none.
	LatestRideForDriver(ctx context.Context, driverID string) (*models.Ride, error)

	// RideIDsForDriver returns the ids of every ride owned by the driver.
	RideIDsForDriver(ctx context.Context, driverID string) ([]string, error)

	// DropoffPoints returns the ride's dropoff-flagged route points ordered
	// by sequence ascending.
	DropoffPoints(ctx context.Context, rideID string) ([]models.RoutePoint, error)
}
