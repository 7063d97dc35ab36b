package tracking_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	geomath "ride_tracker/internal/geo"
	"ride_tracker/internal/models"
	"ride_tracker/internal/store/memory"
	"ride_tracker/internal/tracking"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*tracking.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	engine := tracking.NewEngine(store, store)
	engine.Clock = func() time.Time { return testNow }
	return engine, store
}

// lineWKB encodes an equatorial LineString over the given longitudes.
func lineWKB(t *testing.T, lngs ...float64) []byte {
	t.Helper()
	coords := make([]geom.Coord, len(lngs))
	for i, lng := range lngs {
		coords[i] = geom.Coord{lng, 0}
	}
	line := geom.NewLineString(geom.XY)
	if _, err := line.SetCoords(coords); err != nil {
		t.Fatalf("set coords: %v", err)
	}
	raw, err := wkb.Marshal(line, binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal wkb: %v", err)
	}
	return raw
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func record(t *testing.T, e *tracking.Engine, userID string, lat, lng float64, ts time.Time, rideID *string) {
	t.Helper()
	err := e.RecordFix(context.Background(), userID, tracking.FixReport{
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
	}, rideID)
	if err != nil {
		t.Fatalf("record fix: %v", err)
	}
}

func TestRecordFixRejectsInvalidCoordinates(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	bad := []tracking.FixReport{
		{Latitude: 91, Longitude: 0, Timestamp: testNow},
		{Latitude: -91, Longitude: 0, Timestamp: testNow},
		{Latitude: 0, Longitude: 181, Timestamp: testNow},
		{Latitude: 0, Longitude: -181, Timestamp: testNow},
	}
	for _, report := range bad {
		err := engine.RecordFix(ctx, "u1", report, strPtr("ride-1"))
		if !errors.Is(err, tracking.ErrInvalidCoordinate) {
			t.Errorf("expected ErrInvalidCoordinate for %+v, got %v", report, err)
		}
	}

	// Nothing may have been written.
	fixes, err := store.FixesForRideByTime(ctx, "ride-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(fixes) != 0 {
		t.Errorf("rejected fixes must not be stored, found %d", len(fixes))
	}
}

func TestRecordFixRequiresTimestamp(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.RecordFix(context.Background(), "u1", tracking.FixReport{Latitude: 1, Longitude: 1}, nil)
	if !errors.Is(err, tracking.ErrMissingTimestamp) {
		t.Errorf("expected ErrMissingTimestamp, got %v", err)
	}
}

func TestConcurrentIngestAssignsDistinctOrders(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	rideID := strPtr("ride-1")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := engine.RecordFix(ctx, "driver-1", tracking.FixReport{
				Latitude:  1,
				Longitude: 1,
				Timestamp: testNow.Add(time.Duration(i) * time.Second),
			}, rideID)
			if err != nil {
				t.Errorf("concurrent record failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	fixes, err := store.FixesForRideByTime(ctx, "ride-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(fixes) != n {
		t.Fatalf("expected %d fixes, got %d", n, len(fixes))
	}

	seen := map[int64]bool{}
	for _, fix := range fixes {
		if fix.Order < 1 || fix.Order > n {
			t.Errorf("order %d outside 1..%d", fix.Order, n)
		}
		if seen[fix.Order] {
			t.Errorf("duplicate order %d", fix.Order)
		}
		seen[fix.Order] = true
	}
}

func TestOrderSequencesAreIndependentPerRide(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	record(t, engine, "u1", 1, 1, testNow, strPtr("ride-a"))
	record(t, engine, "u1", 1, 1, testNow.Add(time.Second), strPtr("ride-a"))
	record(t, engine, "u2", 2, 2, testNow, strPtr("ride-b"))

	a, _ := store.FixesForRideByTime(ctx, "ride-a")
	b, _ := store.FixesForRideByTime(ctx, "ride-b")

	if a[0].Order != 1 || a[1].Order != 2 {
		t.Errorf("ride-a orders: got %d,%d", a[0].Order, a[1].Order)
	}
	if b[0].Order != 1 {
		t.Errorf("ride-b should restart at 1, got %d", b[0].Order)
	}
}

func TestCurrentLocation(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	// No rides at all.
	fix, err := engine.CurrentLocation(ctx, "driver-1")
	if err != nil || fix != nil {
		t.Errorf("expected absent result for unknown driver, got %v %v", fix, err)
	}

	store.AddRide(models.Ride{ID: "ride-1", DriverID: "driver-1", CreatedAt: testNow.Add(-2 * time.Hour)})
	record(t, engine, "driver-1", 10, 20, testNow.Add(-time.Hour), strPtr("ride-1"))
	record(t, engine, "driver-1", 11, 21, testNow.Add(-30*time.Minute), strPtr("ride-1"))

	fix, err = engine.CurrentLocation(ctx, "driver-1")
	if err != nil {
		t.Fatal(err)
	}
	if fix == nil || fix.Latitude != 11 || fix.Longitude != 21 {
		t.Errorf("expected latest fix (11,21), got %+v", fix)
	}
}

// A newer ride with no fixes shadows an older ride that is still reporting.
// That is the documented "most recently created ride" rule; this test pins
// the behavior so any future change to ride-status-based resolution is
// deliberate.
func TestCurrentLocationNewerEmptyRideShadowsActiveOne(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-old", DriverID: "driver-1", CreatedAt: testNow.Add(-2 * time.Hour)})
	record(t, engine, "driver-1", 10, 20, testNow.Add(-time.Minute), strPtr("ride-old"))

	store.AddRide(models.Ride{ID: "ride-new", DriverID: "driver-1", CreatedAt: testNow.Add(-time.Hour)})

	fix, err := engine.CurrentLocation(ctx, "driver-1")
	if err != nil {
		t.Fatal(err)
	}
	if fix != nil {
		t.Errorf("newest ride has no fixes, expected absent result, got %+v", fix)
	}
}

func TestLocationHistoryCapAndOrder(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-1", DriverID: "driver-1", CreatedAt: testNow})
	for i := 0; i < 1005; i++ {
		record(t, engine, "driver-1", 1, 1, testNow.Add(time.Duration(i)*time.Second), strPtr("ride-1"))
	}

	history, err := engine.LocationHistory(ctx, "driver-1", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1000 {
		t.Fatalf("history must cap at 1000, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.After(history[i-1].Timestamp) {
			t.Fatalf("history not newest-first at index %d", i)
		}
	}
	if !history[0].Timestamp.Equal(testNow.Add(1004 * time.Second)) {
		t.Errorf("newest entry wrong: %v", history[0].Timestamp)
	}
}

func TestLocationHistoryTimeWindowInclusive(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-1", DriverID: "driver-1", CreatedAt: testNow})
	times := []time.Time{testNow, testNow.Add(time.Minute), testNow.Add(2 * time.Minute)}
	for _, ts := range times {
		record(t, engine, "driver-1", 1, 1, ts, strPtr("ride-1"))
	}

	from := times[0]
	to := times[1]
	history, err := engine.LocationHistory(ctx, "driver-1", &from, &to, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("inclusive window should keep both boundary fixes, got %d", len(history))
	}
}

func TestLocationHistoryRideFilter(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-a", DriverID: "driver-1", CreatedAt: testNow})
	store.AddRide(models.Ride{ID: "ride-b", DriverID: "driver-1", CreatedAt: testNow})
	record(t, engine, "driver-1", 1, 1, testNow, strPtr("ride-a"))
	record(t, engine, "driver-1", 2, 2, testNow.Add(time.Second), strPtr("ride-b"))

	history, err := engine.LocationHistory(ctx, "driver-1", nil, nil, strPtr("ride-a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || *history[0].RideID != "ride-a" {
		t.Errorf("ride filter failed: %+v", history)
	}

	all, err := engine.LocationHistory(ctx, "driver-1", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected union over both rides, got %d", len(all))
	}
}

func TestFindNearbyUsers(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	center := geomath.Point{Lat: 0, Lng: 0}

	// Fresh fix close to center.
	record(t, engine, "near", 0, 0.01, testNow.Add(-10*time.Minute), strPtr("ride-near"))
	// Fresh fix far away.
	record(t, engine, "far", 10, 10, testNow.Add(-10*time.Minute), strPtr("ride-far"))
	// Close but stale: latest fix older than one hour.
	record(t, engine, "stale", 0, 0.005, testNow.Add(-2*time.Hour), strPtr("ride-stale"))
	// Close and fresh but explicitly excluded.
	record(t, engine, "excluded", 0, 0.002, testNow.Add(-5*time.Minute), strPtr("ride-excl"))

	users, err := engine.FindNearbyUsers(ctx, center, 5000, "excluded")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("expected exactly one nearby user, got %d: %+v", len(users), users)
	}
	if users[0].UserID != "near" {
		t.Errorf("expected user 'near', got %s", users[0].UserID)
	}
	if math.Abs(users[0].DistanceMeters-1112) > 20 {
		t.Errorf("unexpected distance: %f", users[0].DistanceMeters)
	}
}

func TestFindNearbyUsersSortedByDistance(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	record(t, engine, "second", 0, 0.02, testNow.Add(-time.Minute), strPtr("ride-2"))
	record(t, engine, "first", 0, 0.01, testNow.Add(-time.Minute), strPtr("ride-1"))

	users, err := engine.FindNearbyUsers(ctx, geomath.Point{Lat: 0, Lng: 0}, 5000, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].UserID != "first" || users[1].UserID != "second" {
		t.Errorf("expected distance-ascending order, got %+v", users)
	}
}

func TestFindNearbyUsersUsesLatestFixOnly(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// The older fix is in range, but the ride's latest fix moved away.
	record(t, engine, "mover", 0, 0.01, testNow.Add(-30*time.Minute), strPtr("ride-1"))
	record(t, engine, "mover", 10, 10, testNow.Add(-5*time.Minute), strPtr("ride-1"))

	users, err := engine.FindNearbyUsers(ctx, geomath.Point{Lat: 0, Lng: 0}, 5000, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Errorf("only the latest fix per ride counts, got %+v", users)
	}
}

func TestDriverLocationForRide(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	loc, err := engine.DriverLocationForRide(ctx, "missing")
	if err != nil || loc != nil {
		t.Errorf("unknown ride should be absent, got %v %v", loc, err)
	}

	store.AddRide(models.Ride{ID: "ride-1", DriverID: "driver-9", CreatedAt: testNow})
	loc, err = engine.DriverLocationForRide(ctx, "ride-1")
	if err != nil || loc != nil {
		t.Errorf("ride without fixes should be absent, got %v %v", loc, err)
	}

	record(t, engine, "driver-9", 5, 6, testNow, strPtr("ride-1"))
	loc, err = engine.DriverLocationForRide(ctx, "ride-1")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil || loc.DriverID != "driver-9" || loc.Latitude != 5 || loc.Longitude != 6 {
		t.Errorf("unexpected driver location: %+v", loc)
	}
}

func TestTrackRouteProgressBoundaries(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	start := geomath.Point{Lat: 0, Lng: 0}
	end := geomath.Point{Lat: 0, Lng: 0.02}
	estimated := math.Round(geomath.Distance(start, end))

	store.AddRide(models.Ride{
		ID:                "ride-1",
		DriverID:          "driver-1",
		StartLat:          start.Lat,
		StartLng:          start.Lng,
		EndLat:            &end.Lat,
		EndLng:            &end.Lng,
		EstimatedDistance: estimated,
		PlannedRoute:      lineWKB(t, 0, 0.01, 0.02),
		CreatedAt:         testNow,
	})

	atStart, err := engine.TrackRouteProgress(ctx, "ride-1", start)
	if err != nil {
		t.Fatal(err)
	}
	if atStart.ProgressFraction > 0.001 {
		t.Errorf("fraction at start should be ~0, got %f", atStart.ProgressFraction)
	}
	if atStart.DistanceFromStart > 1 {
		t.Errorf("distance from start at start should be ~0, got %f", atStart.DistanceFromStart)
	}
	if atStart.ProgressPercentage != 0 {
		t.Errorf("percentage at start should be 0, got %d", atStart.ProgressPercentage)
	}

	atEnd, err := engine.TrackRouteProgress(ctx, "ride-1", end)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(atEnd.ProgressFraction-1) > 0.001 {
		t.Errorf("fraction at end should be ~1, got %f", atEnd.ProgressFraction)
	}
	if atEnd.ProgressPercentage != 100 {
		t.Errorf("percentage at end should be 100, got %d", atEnd.ProgressPercentage)
	}
	if atEnd.RemainingDistance != 0 {
		t.Errorf("remaining distance at end should be 0, got %f", atEnd.RemainingDistance)
	}
}

func TestTrackRouteProgressAbsentWithoutGeometry(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	snapshot, err := engine.TrackRouteProgress(ctx, "missing", geomath.Point{})
	if err != nil || snapshot != nil {
		t.Errorf("unknown ride should be absent, got %v %v", snapshot, err)
	}

	store.AddRide(models.Ride{ID: "ride-bare", DriverID: "d", CreatedAt: testNow})
	snapshot, err = engine.TrackRouteProgress(ctx, "ride-bare", geomath.Point{})
	if err != nil || snapshot != nil {
		t.Errorf("ride without geometry should be absent, got %v %v", snapshot, err)
	}
}

func TestCalculateETAAtDestination(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	end := geomath.Point{Lat: 0, Lng: 0.02}
	store.AddRide(models.Ride{
		ID: "ride-1", DriverID: "d",
		EndLat: &end.Lat, EndLng: &end.Lng,
		CreatedAt: testNow,
	})

	eta, err := engine.CalculateETA(ctx, "ride-1", end, 0)
	if err != nil {
		t.Fatal(err)
	}
	if eta.RemainingDistance != 0 || eta.RemainingTimeMinutes != 0 {
		t.Errorf("at the destination both remainders should be 0, got %+v", eta)
	}
	if !eta.EstimatedArrival.Equal(testNow) {
		t.Errorf("arrival should be now, got %v", eta.EstimatedArrival)
	}
}

func TestCalculateETAPrefersPendingDropoff(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	end := geomath.Point{Lat: 0, Lng: 0.02}
	store.AddRide(models.Ride{
		ID: "ride-1", DriverID: "d",
		EndLat: &end.Lat, EndLng: &end.Lng,
		CreatedAt: testNow,
	})
	store.AddRoutePoints(
		models.RoutePoint{RideID: "ride-1", Seq: 2, Lat: 0, Lng: 0.015, IsDropoff: true},
		models.RoutePoint{RideID: "ride-1", Seq: 1, Lat: 0, Lng: 0.01, IsDropoff: true},
		models.RoutePoint{RideID: "ride-1", Seq: 0, Lat: 0, Lng: 0.005, IsPickup: true},
	)

	current := geomath.Point{Lat: 0, Lng: 0}
	eta, err := engine.CalculateETA(ctx, "ride-1", current, 30)
	if err != nil {
		t.Fatal(err)
	}

	// Destination must be the seq=1 dropoff, not the end point or the pickup.
	wantDistance := math.Round(geomath.Distance(current, geomath.Point{Lat: 0, Lng: 0.01}))
	if eta.RemainingDistance != wantDistance {
		t.Errorf("remaining distance: got %f, want %f", eta.RemainingDistance, wantDistance)
	}

	wantMinutes := int(math.Round(wantDistance / (30 * 1000 / 3600) / 60))
	if eta.RemainingTimeMinutes != wantMinutes {
		t.Errorf("remaining minutes: got %d, want %d", eta.RemainingTimeMinutes, wantMinutes)
	}
}

func TestCalculateETAAbsentWithoutEndPoint(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-open", DriverID: "d", CreatedAt: testNow})

	eta, err := engine.CalculateETA(ctx, "ride-open", geomath.Point{}, 0)
	if err != nil || eta != nil {
		t.Errorf("ride without end point should be absent, got %v %v", eta, err)
	}
}

func TestLocationClusters(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Two groups inside the box, one fix outside, one too old.
	for i := 0; i < 6; i++ {
		record(t, engine, fmt.Sprintf("u%d", i), 1+float64(i)*0.001, 1, testNow.Add(-time.Hour), strPtr("ride-a"))
	}
	for i := 0; i < 3; i++ {
		record(t, engine, "u-b", 2+float64(i)*0.001, 2, testNow.Add(-time.Hour), strPtr("ride-b"))
	}
	record(t, engine, "outside", 50, 50, testNow.Add(-time.Hour), strPtr("ride-c"))
	record(t, engine, "too-old", 1, 1, testNow.Add(-25*time.Hour), strPtr("ride-d"))

	bounds := geomath.NewRect(geomath.Point{Lat: 0, Lng: 0}, geomath.Point{Lat: 3, Lng: 3})
	clusters, err := engine.LocationClusters(ctx, bounds, 0)
	if err != nil {
		t.Fatal(err)
	}

	total := 0
	for _, c := range clusters {
		total += c.PointCount
		if c.UserCount < 1 || c.UserCount > c.PointCount {
			t.Errorf("user count %d out of range for cluster of %d points", c.UserCount, c.PointCount)
		}
		center := geomath.Point{Lat: c.CenterLat, Lng: c.CenterLng}
		envelope := geomath.Rect{MinLat: c.MinLat, MinLng: c.MinLng, MaxLat: c.MaxLat, MaxLng: c.MaxLng}
		if !envelope.Contains(center) {
			t.Errorf("centroid %+v outside its envelope %+v", center, envelope)
		}
	}
	if total != 9 {
		t.Errorf("expected 9 clustered points, got %d", total)
	}
	if len(clusters) > 10 {
		t.Errorf("cluster count exceeds cap: %d", len(clusters))
	}
	for i := 1; i < len(clusters); i++ {
		if clusters[i].PointCount > clusters[i-1].PointCount {
			t.Errorf("clusters not ordered by descending point count")
		}
	}
}

func TestLocationClustersEmptyResult(t *testing.T) {
	engine, _ := newTestEngine(t)

	bounds := geomath.NewRect(geomath.Point{Lat: 0, Lng: 0}, geomath.Point{Lat: 1, Lng: 1})
	clusters, err := engine.LocationClusters(context.Background(), bounds, 0)
	if err != nil {
		t.Fatal(err)
	}
	if clusters == nil || len(clusters) != 0 {
		t.Errorf("no data must degrade to an empty slice, got %v", clusters)
	}
}

func TestCleanupOldLocations(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	record(t, engine, "u1", 1, 1, testNow.AddDate(0, 0, -31), strPtr("ride-1"))
	record(t, engine, "u1", 1, 1, testNow.AddDate(0, 0, -29), strPtr("ride-1"))

	deleted, err := engine.CleanupOldLocations(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted fix, got %d", deleted)
	}

	remaining, _ := store.FixesForRideByTime(ctx, "ride-1")
	if len(remaining) != 1 {
		t.Fatalf("expected 1 surviving fix, got %d", len(remaining))
	}
	if !remaining[0].Timestamp.Equal(testNow.AddDate(0, 0, -29)) {
		t.Errorf("wrong fix survived: %v", remaining[0].Timestamp)
	}
}

func TestLocationAccuracyStats(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.AddRide(models.Ride{ID: "ride-1", DriverID: "driver-1", CreatedAt: testNow})

	accuracies := []float64{4, 8, 12}
	for i, acc := range accuracies {
		err := engine.RecordFix(ctx, "driver-1", tracking.FixReport{
			Latitude:  1,
			Longitude: 1,
			Timestamp: testNow.Add(time.Duration(i) * time.Minute),
			Accuracy:  floatPtr(acc),
		}, strPtr("ride-1"))
		if err != nil {
			t.Fatal(err)
		}
	}
	// A fix without accuracy must not count.
	record(t, engine, "driver-1", 1, 1, testNow.Add(time.Hour), strPtr("ride-1"))

	stats, err := engine.LocationAccuracyStats(ctx, "driver-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReadings != 3 {
		t.Fatalf("expected 3 readings, got %d", stats.TotalReadings)
	}
	if *stats.AverageAccuracy != 8 || *stats.MinAccuracy != 4 || *stats.MaxAccuracy != 12 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// No rides, no stats.
	empty, err := engine.LocationAccuracyStats(ctx, "nobody", nil)
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalReadings != 0 || empty.AverageAccuracy != nil {
		t.Errorf("expected empty stats, got %+v", empty)
	}
}

func TestFindLocationGaps(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := testNow.Add(-time.Hour)
	record(t, engine, "u1", 1, 1, base, strPtr("ride-1"))
	record(t, engine, "u1", 1, 1, base.Add(time.Minute), strPtr("ride-1"))
	record(t, engine, "u1", 1, 1, base.Add(10*time.Minute), strPtr("ride-1"))

	gaps, err := engine.FindLocationGaps(ctx, "ride-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected exactly one gap, got %d: %+v", len(gaps), gaps)
	}
	gap := gaps[0]
	if math.Abs(gap.GapMinutes-9) > 0.001 {
		t.Errorf("gap should be ~9 minutes, got %f", gap.GapMinutes)
	}
	if !gap.Timestamp.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("gap should be attributed to the late fix, got %v", gap.Timestamp)
	}
	if !gap.PreviousTimestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("wrong previous timestamp: %v", gap.PreviousTimestamp)
	}
}

func TestFindLocationGapsSortedBySize(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := testNow.Add(-2 * time.Hour)
	record(t, engine, "u1", 1, 1, base, strPtr("ride-1"))
	record(t, engine, "u1", 1, 1, base.Add(7*time.Minute), strPtr("ride-1"))
	record(t, engine, "u1", 1, 1, base.Add(27*time.Minute), strPtr("ride-1"))

	gaps, err := engine.FindLocationGaps(ctx, "ride-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(gaps) != 2 {
		t.Fatalf("expected two gaps, got %d", len(gaps))
	}
	if gaps[0].GapMinutes < gaps[1].GapMinutes {
		t.Errorf("gaps must be ordered largest first: %+v", gaps)
	}
}
