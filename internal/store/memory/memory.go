// Package memory holds an in-process implementation of the tracking storage
// interfaces. It backs the engine's tests and the dev profile, where running
// a spatially-indexed database would be overkill.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ride_tracker/internal/geo"
	"ride_tracker/internal/models"
	"ride_tracker/internal/tracking"
)

// Store keeps fixes and ride reference data in memory behind one mutex.
// Appends serialize on the lock, which makes per-ride order assignment
// trivially atomic.
type Store struct {
	mu     sync.Mutex
	fixes  []models.PositionFix
	orders map[string]int64 // max order per ride; key "" is the no-ride bucket
	rides  []models.Ride
	points []models.RoutePoint
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{orders: make(map[string]int64)}
}

var _ tracking.FixStore = (*Store)(nil)
var _ tracking.RideDirectory = (*Store)(nil)

func rideKey(rideID *string) string {
	if rideID == nil {
		return ""
	}
	return *rideID
}

// AppendFix assigns the next per-ride order under the store lock and keeps
// the fix. The fix slice preserves insertion order, which is what breaks
// timestamp ties everywhere else.
func (s *Store) AppendFix(ctx context.Context, fix *models.PositionFix) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rideKey(fix.RideID)
	s.orders[key]++
	fix.Order = s.orders[key]
	s.fixes = append(s.fixes, *fix)
	return nil
}

func (s *Store) LatestFixForRide(ctx context.Context, rideID string) (*models.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.PositionFix
	for i := range s.fixes {
		fix := &s.fixes[i]
		if fix.RideID == nil || *fix.RideID != rideID {
			continue
		}
		if latest == nil || !fix.Timestamp.Before(latest.Timestamp) {
			latest = fix
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *Store) ListFixes(ctx context.Context, q tracking.FixQuery) ([]models.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(q.RideIDs))
	for _, id := range q.RideIDs {
		wanted[id] = struct{}{}
	}

	type indexed struct {
		fix models.PositionFix
		pos int
	}
	matches := []indexed{}
	for i, fix := range s.fixes {
		if fix.RideID == nil {
			continue
		}
		if _, ok := wanted[*fix.RideID]; !ok {
			continue
		}
		if q.From != nil && fix.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && fix.Timestamp.After(*q.To) {
			continue
		}
		matches = append(matches, indexed{fix: fix, pos: i})
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].fix.Timestamp.Equal(matches[j].fix.Timestamp) {
			return matches[i].fix.Timestamp.After(matches[j].fix.Timestamp)
		}
		return matches[i].pos > matches[j].pos
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	out := make([]models.PositionFix, len(matches))
	for i, m := range matches {
		out[i] = m.fix
	}
	return out, nil
}

func (s *Store) FixesForRideByTime(ctx context.Context, rideID string) ([]models.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.PositionFix{}
	for _, fix := range s.fixes {
		if fix.RideID != nil && *fix.RideID == rideID {
			out = append(out, fix)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) LatestFixPerRideSince(ctx context.Context, since time.Time) ([]models.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := map[string]models.PositionFix{}
	for _, fix := range s.fixes {
		if fix.RideID == nil {
			continue
		}
		cur, ok := latest[*fix.RideID]
		if !ok || !fix.Timestamp.Before(cur.Timestamp) {
			latest[*fix.RideID] = fix
		}
	}

	out := []models.PositionFix{}
	for _, fix := range latest {
		if fix.Timestamp.Before(since) {
			continue
		}
		out = append(out, fix)
	}
	return out, nil
}

func (s *Store) FixesWithinRectSince(ctx context.Context, rect geo.Rect, since time.Time) ([]models.PositionFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.PositionFix{}
	for _, fix := range s.fixes {
		if fix.Timestamp.Before(since) {
			continue
		}
		if rect.Contains(geo.Point{Lat: fix.Latitude, Lng: fix.Longitude}) {
			out = append(out, fix)
		}
	}
	return out, nil
}

func (s *Store) DeleteFixesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.fixes[:0]
	var deleted int64
	for _, fix := range s.fixes {
		if fix.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, fix)
	}
	s.fixes = kept
	return deleted, nil
}

func (s *Store) AccuracyStats(ctx context.Context, rideIDs []string, from *time.Time) (tracking.AccuracyStats, error) {
	if err := ctx.Err(); err != nil {
		return tracking.AccuracyStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(rideIDs))
	for _, id := range rideIDs {
		wanted[id] = struct{}{}
	}

	stats := tracking.AccuracyStats{}
	var sum float64
	for _, fix := range s.fixes {
		if fix.RideID == nil || fix.Accuracy == nil {
			continue
		}
		if _, ok := wanted[*fix.RideID]; !ok {
			continue
		}
		if from != nil && fix.Timestamp.Before(*from) {
			continue
		}

		acc := *fix.Accuracy
		sum += acc
		stats.TotalReadings++
		if stats.MinAccuracy == nil || acc < *stats.MinAccuracy {
			v := acc
			stats.MinAccuracy = &v
		}
		if stats.MaxAccuracy == nil || acc > *stats.MaxAccuracy {
			v := acc
			stats.MaxAccuracy = &v
		}
	}
	if stats.TotalReadings > 0 {
		avg := sum / float64(stats.TotalReadings)
		stats.AverageAccuracy = &avg
	}
	return stats, nil
}

// AddRide seeds ride reference data.
func (s *Store) AddRide(ride models.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides = append(s.rides, ride)
}

// SyncRide upserts a ride and replaces its route points.
func (s *Store) SyncRide(ctx context.Context, ride *models.Ride, points []models.RoutePoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.rides {
		if s.rides[i].ID == ride.ID {
			s.rides[i] = *ride
			replaced = true
			break
		}
	}
	if !replaced {
		s.rides = append(s.rides, *ride)
	}

	kept := s.points[:0]
	for _, pt := range s.points {
		if pt.RideID != ride.ID {
			kept = append(kept, pt)
		}
	}
	s.points = kept
	for i := range points {
		points[i].RideID = ride.ID
	}
	s.points = append(s.points, points...)
	return nil
}

// AddRoutePoints seeds route points for a ride.
func (s *Store) AddRoutePoints(points ...models.RoutePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, points...)
}

func (s *Store) RideByID(ctx context.Context, id string) (*models.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rides {
		if s.rides[i].ID == id {
			out := s.rides[i]
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) LatestRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Ride
	for i := range s.rides {
		ride := &s.rides[i]
		if ride.DriverID != driverID {
			continue
		}
		if latest == nil || !ride.CreatedAt.Before(latest.CreatedAt) {
			latest = ride
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *Store) RideIDsForDriver(ctx context.Context, driverID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{}
	for _, ride := range s.rides {
		if ride.DriverID == driverID {
			ids = append(ids, ride.ID)
		}
	}
	return ids, nil
}

func (s *Store) DropoffPoints(ctx context.Context, rideID string) ([]models.RoutePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.RoutePoint{}
	for _, pt := range s.points {
		if pt.RideID == rideID && pt.IsDropoff {
			out = append(out, pt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
