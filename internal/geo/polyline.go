package geo

import (
	"math"
)

// Polyline is an ordered path of WGS84 coordinates.
type Polyline []Point

// Length returns the sum of the haversine lengths of all segments in meters.
func (pl Polyline) Length() float64 {
	total := 0.0
	for i := 1; i < len(pl); i++ {
		total += Distance(pl[i-1], pl[i])
	}
	return total
}

// Project locates the nearest point on the polyline to p and expresses it as
// a fraction of the total line length: 0 at the first vertex, 1 at the last.
// The returned Point is the projection itself.
//
// The segment-local projection is planar (equirectangular with latitude
// scaling), which is accurate at the sub-kilometer scales GPS fixes move
// between calls; distances along the line are haversine.
func (pl Polyline) Project(p Point) (float64, Point) {
	if len(pl) == 0 {
		return 0, p
	}
	if len(pl) == 1 {
		return 0, pl[0]
	}

	total := pl.Length()
	if total == 0 {
		return 0, pl[0]
	}

	bestDist := math.Inf(1)
	bestAlong := 0.0
	bestPt := pl[0]

	traversed := 0.0
	for i := 1; i < len(pl); i++ {
		a, b := pl[i-1], pl[i]
		segLen := Distance(a, b)

		t, nearest := projectOnSegment(a, b, p)
		d := Distance(p, nearest)
		if d < bestDist {
			bestDist = d
			bestAlong = traversed + t*segLen
			bestPt = nearest
		}
		traversed += segLen
	}

	return bestAlong / total, bestPt
}

// projectOnSegment returns the clamped parameter t in [0,1] of the nearest
// point to p on the segment a-b, and that nearest point.
func projectOnSegment(a, b, p Point) (float64, Point) {
	// Local planar frame centered on a; longitude scaled by cos(lat).
	scale := math.Cos(toRadians(a.Lat))
	ax, ay := 0.0, 0.0
	bx, by := (b.Lng-a.Lng)*scale, b.Lat-a.Lat
	px, py := (p.Lng-a.Lng)*scale, p.Lat-a.Lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return 0, a
	}

	t := (px*dx + py*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return t, Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
}
