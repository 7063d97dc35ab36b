package tracking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	geomath "ride_tracker/internal/geo"
	"ride_tracker/internal/models"
)

const (
	// DefaultNearbyRadiusMeters bounds proximity searches when the caller
	// does not say otherwise.
	DefaultNearbyRadiusMeters = 5000

	// DefaultAverageSpeedKmh is the ETA speed assumption.
	DefaultAverageSpeedKmh = 30

	// DefaultRetentionDays is how long fixes are kept before cleanup.
	DefaultRetentionDays = 30

	// DefaultMaxGapMinutes is the dropout-detection threshold.
	DefaultMaxGapMinutes = 5

	// historyLimit caps location-history responses.
	historyLimit = 1000

	// nearbyFreshness is how recent a ride's latest fix must be to count as
	// live in a proximity search.
	nearbyFreshness = time.Hour

	// clusterWindow is how far back spatial aggregation looks.
	clusterWindow = 24 * time.Hour

	// maxClusters caps the k-means partition size.
	maxClusters = 10
)

// Engine is the geospatial tracking core. It owns position-fix storage and
// reads ride reference data; all spatial math happens here and in the geo
// package, keeping storage implementations free of geometry concerns.
type Engine struct {
	fixes FixStore
	rides RideDirectory

	// Clock is the time source; tests override it.
	Clock func() time.Time
}

// NewEngine wires an engine to its storage collaborators.
func NewEngine(fixes FixStore, rides RideDirectory) *Engine {
	return &Engine{fixes: fixes, rides: rides, Clock: time.Now}
}

// RecordFix validates and appends one reported fix. The per-ride sequence
// order is assigned by the store as an atomic step. Out-of-order timestamps
// are not rejected: they are stored as reported and ingestion order remains
// the sequencing source of truth.
func (e *Engine) RecordFix(ctx context.Context, userID string, report FixReport, rideID *string) error {
	pt := geomath.Point{Lat: report.Latitude, Lng: report.Longitude}
	if !pt.Valid() {
		return fmt.Errorf("record fix (%f,%f): %w", report.Latitude, report.Longitude, ErrInvalidCoordinate)
	}
	if report.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}

	fix := &models.PositionFix{
		ID:        uuid.NewString(),
		UserID:    userID,
		RideID:    rideID,
		Latitude:  report.Latitude,
		Longitude: report.Longitude,
		Speed:     report.Speed,
		Heading:   report.Heading,
		Accuracy:  report.Accuracy,
		Timestamp: report.Timestamp.UTC(),
	}

	if err := e.fixes.AppendFix(ctx, fix); err != nil {
		return fmt.Errorf("append fix for user %s: %w", userID, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"fix_id":  fix.ID,
		"order":   fix.Order,
	}).Debug("Recorded position fix.")
	return nil
}

// CurrentLocation returns the latest fix on the user's most recently created
// ride, or nil when the user has no ride or the ride has no fixes yet.
//
// "Most recent" is ride creation time, not fix recency: a newly created ride
// with no fixes shadows an older ride that is still reporting. That matches
// the upstream ride collaborator's expectations and is pinned by a test.
func (e *Engine) CurrentLocation(ctx context.Context, userID string) (*models.PositionFix, error) {
	ride, err := e.rides.LatestRideForDriver(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest ride for %s: %w", userID, err)
	}
	if ride == nil {
		return nil, nil
	}

	fix, err := e.fixes.LatestFixForRide(ctx, ride.ID)
	if err != nil {
		return nil, fmt.Errorf("latest fix for ride %s: %w", ride.ID, err)
	}
	return fix, nil
}

// LocationHistory lists a user's fixes newest first, capped at 1000. With a
// ride id the listing is restricted to that ride; otherwise it spans every
// ride the user owns. Time bounds are inclusive.
func (e *Engine) LocationHistory(ctx context.Context, userID string, from, to *time.Time, rideID *string) ([]models.PositionFix, error) {
	var rideIDs []string
	if rideID != nil {
		rideIDs = []string{*rideID}
	} else {
		ids, err := e.rides.RideIDsForDriver(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("rides for %s: %w", userID, err)
		}
		if len(ids) == 0 {
			return []models.PositionFix{}, nil
		}
		rideIDs = ids
	}

	fixes, err := e.fixes.ListFixes(ctx, FixQuery{
		RideIDs: rideIDs,
		From:    from,
		To:      to,
		Limit:   historyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list fixes: %w", err)
	}
	return fixes, nil
}

// FindNearbyUsers returns users whose latest ride fix within the last hour
// lies inside radiusMeters of the center, ordered nearest first. Rides with
// no fresh fix are excluded entirely; excludeUserID filters one user out even
// when in range. A non-positive radius falls back to the default.
func (e *Engine) FindNearbyUsers(ctx context.Context, center geomath.Point, radiusMeters float64, excludeUserID string) ([]NearbyUser, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}

	since := e.Clock().Add(-nearbyFreshness)
	latest, err := e.fixes.LatestFixPerRideSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("latest fixes since %s: %w", since, err)
	}

	nearby := []NearbyUser{}
	for _, fix := range latest {
		if excludeUserID != "" && fix.UserID == excludeUserID {
			continue
		}
		d := geomath.Distance(center, geomath.Point{Lat: fix.Latitude, Lng: fix.Longitude})
		if d > radiusMeters {
			continue
		}
		nearby = append(nearby, NearbyUser{
			UserID:         fix.UserID,
			Latitude:       fix.Latitude,
			Longitude:      fix.Longitude,
			DistanceMeters: d,
			Timestamp:      fix.Timestamp,
		})
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceMeters < nearby[j].DistanceMeters
	})
	return nearby, nil
}

// DriverLocationForRide returns the latest fix for the ride joined with the
// ride's driver, or nil when the ride is unknown or has no fixes.
func (e *Engine) DriverLocationForRide(ctx context.Context, rideID string) (*DriverLocation, error) {
	ride, err := e.rides.RideByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("ride %s: %w", rideID, err)
	}
	if ride == nil {
		return nil, nil
	}

	fix, err := e.fixes.LatestFixForRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("latest fix for ride %s: %w", rideID, err)
	}
	if fix == nil {
		return nil, nil
	}

	return &DriverLocation{
		RideID:    ride.ID,
		DriverID:  ride.DriverID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: fix.Timestamp,
	}, nil
}

// TrackRouteProgress projects a live point onto the ride's planned route.
// Nil when the ride is unknown or has no planned geometry.
func (e *Engine) TrackRouteProgress(ctx context.Context, rideID string, current geomath.Point) (*ProgressSnapshot, error) {
	ride, err := e.rides.RideByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("ride %s: %w", rideID, err)
	}
	if ride == nil || len(ride.PlannedRoute) == 0 {
		return nil, nil
	}

	route, err := decodeRoute(ride.PlannedRoute)
	if err != nil {
		return nil, fmt.Errorf("planned route for ride %s: %w", rideID, err)
	}

	fraction, _ := route.Project(current)
	start := geomath.Point{Lat: ride.StartLat, Lng: ride.StartLng}
	distanceFromStart := math.Round(geomath.Distance(start, current))

	return &ProgressSnapshot{
		ProgressFraction:   fraction,
		ProgressPercentage: int(math.Round(fraction * 100)),
		DistanceFromStart:  distanceFromStart,
		RemainingDistance:  math.Max(0, ride.EstimatedDistance-distanceFromStart),
	}, nil
}

// CalculateETA estimates arrival at the ride's next destination: the earliest
// pending dropoff route point if one exists, else the ride's end point. Nil
// when the ride is unknown or has no end point. A non-positive speed falls
// back to the 30 km/h default.
func (e *Engine) CalculateETA(ctx context.Context, rideID string, current geomath.Point, averageSpeedKmh float64) (*ETAEstimate, error) {
	if averageSpeedKmh <= 0 {
		averageSpeedKmh = DefaultAverageSpeedKmh
	}

	ride, err := e.rides.RideByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("ride %s: %w", rideID, err)
	}
	if ride == nil || ride.EndLat == nil || ride.EndLng == nil {
		return nil, nil
	}

	destination := geomath.Point{Lat: *ride.EndLat, Lng: *ride.EndLng}
	dropoffs, err := e.rides.DropoffPoints(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("dropoff points for ride %s: %w", rideID, err)
	}
	if len(dropoffs) > 0 {
		destination = geomath.Point{Lat: dropoffs[0].Lat, Lng: dropoffs[0].Lng}
	}

	remaining := geomath.Distance(current, destination)
	speedMs := averageSpeedKmh * 1000 / 3600
	etaSeconds := remaining / speedMs

	return &ETAEstimate{
		EstimatedArrival:     e.Clock().Add(time.Duration(etaSeconds * float64(time.Second))),
		RemainingDistance:    math.Round(remaining),
		RemainingTimeMinutes: int(math.Round(etaSeconds / 60)),
	}, nil
}

// LocationClusters groups fixes reported inside the bounding box over the
// last 24 hours into at most ten k-means clusters, ordered by descending
// point count. clusterRadius is advisory only and currently does not alter
// the partition; it is kept for interface stability with the dashboard
// consumers. Degrades to an empty slice when nothing qualifies.
func (e *Engine) LocationClusters(ctx context.Context, bounds geomath.Rect, clusterRadius float64) ([]LocationCluster, error) {
	_ = clusterRadius

	since := e.Clock().Add(-clusterWindow)
	fixes, err := e.fixes.FixesWithinRectSince(ctx, bounds, since)
	if err != nil {
		return nil, fmt.Errorf("fixes within bounds: %w", err)
	}
	if len(fixes) == 0 {
		return []LocationCluster{}, nil
	}

	points := make([]geomath.Point, len(fixes))
	for i, fix := range fixes {
		points[i] = geomath.Point{Lat: fix.Latitude, Lng: fix.Longitude}
	}
	assignment := geomath.KMeans(points, maxClusters)

	grouped := map[int][]int{}
	for i, c := range assignment {
		grouped[c] = append(grouped[c], i)
	}

	clusters := make([]LocationCluster, 0, len(grouped))
	for id, members := range grouped {
		memberPoints := make([]geomath.Point, len(members))
		users := map[string]struct{}{}
		for i, idx := range members {
			memberPoints[i] = points[idx]
			users[fixes[idx].UserID] = struct{}{}
		}
		centroid := geomath.Centroid(memberPoints)
		envelope := geomath.RectAround(memberPoints)
		clusters = append(clusters, LocationCluster{
			ClusterID:  id,
			PointCount: len(members),
			UserCount:  len(users),
			CenterLat:  centroid.Lat,
			CenterLng:  centroid.Lng,
			MinLat:     envelope.MinLat,
			MinLng:     envelope.MinLng,
			MaxLat:     envelope.MaxLat,
			MaxLng:     envelope.MaxLng,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].PointCount != clusters[j].PointCount {
			return clusters[i].PointCount > clusters[j].PointCount
		}
		return clusters[i].ClusterID < clusters[j].ClusterID
	})
	return clusters, nil
}

// CleanupOldLocations deletes fixes older than daysToKeep days and reports
// how many rows went away. Intended for scheduled maintenance; irreversible.
// A non-positive argument falls back to the 30-day default.
func (e *Engine) CleanupOldLocations(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}

	cutoff := e.Clock().AddDate(0, 0, -daysToKeep)
	deleted, err := e.fixes.DeleteFixesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete fixes before %s: %w", cutoff, err)
	}

	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Location retention cleanup removed old fixes.")
	}
	return deleted, nil
}

// LocationAccuracyStats aggregates accuracy readings over the user's rides,
// optionally bounded below in time.
func (e *Engine) LocationAccuracyStats(ctx context.Context, userID string, from *time.Time) (AccuracyStats, error) {
	rideIDs, err := e.rides.RideIDsForDriver(ctx, userID)
	if err != nil {
		return AccuracyStats{}, fmt.Errorf("rides for %s: %w", userID, err)
	}
	if len(rideIDs) == 0 {
		return AccuracyStats{}, nil
	}

	stats, err := e.fixes.AccuracyStats(ctx, rideIDs, from)
	if err != nil {
		return AccuracyStats{}, fmt.Errorf("accuracy stats for %s: %w", userID, err)
	}
	return stats, nil
}

// FindLocationGaps walks a ride's fixes in timestamp order and reports every
// inter-fix delta exceeding maxGapMinutes, largest gap first. Used to detect
// tracking dropouts: app backgrounded, GPS lost, connectivity loss.
func (e *Engine) FindLocationGaps(ctx context.Context, rideID string, maxGapMinutes float64) ([]LocationGap, error) {
	if maxGapMinutes <= 0 {
		maxGapMinutes = DefaultMaxGapMinutes
	}

	fixes, err := e.fixes.FixesForRideByTime(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("fixes for ride %s: %w", rideID, err)
	}

	gaps := []LocationGap{}
	for i := 1; i < len(fixes); i++ {
		delta := fixes[i].Timestamp.Sub(fixes[i-1].Timestamp).Minutes()
		if delta > maxGapMinutes {
			gaps = append(gaps, LocationGap{
				FixID:             fixes[i].ID,
				Timestamp:         fixes[i].Timestamp,
				PreviousTimestamp: fixes[i-1].Timestamp,
				GapMinutes:        delta,
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		return gaps[i].GapMinutes > gaps[j].GapMinutes
	})
	return gaps, nil
}

// decodeRoute turns stored WKB into a projectable polyline.
func decodeRoute(raw []byte) (geomath.Polyline, error) {
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	line, ok := g.(*geom.LineString)
	if !ok {
		return nil, fmt.Errorf("planned route is %T, expected LineString", g)
	}

	coords := line.Coords()
	route := make(geomath.Polyline, len(coords))
	for i, c := range coords {
		route[i] = geomath.Point{Lat: c.Y(), Lng: c.X()}
	}
	return route, nil
}
