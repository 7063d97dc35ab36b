package geo

import (
	"math"
)

const earthRadiusMeters = 6371000

// Point encapsulates a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS84 value range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the haversine great-circle distance between two points in meters.
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees [0,360).
func Bearing(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	deltaLng := toRadians(b.Lng - a.Lng)

	y := math.Sin(deltaLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLng)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// Rect is a latitude/longitude aligned bounding box.
type Rect struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// NewRect normalizes two corner points into a Rect.
func NewRect(a, b Point) Rect {
	return Rect{
		MinLat: math.Min(a.Lat, b.Lat),
		MinLng: math.Min(a.Lng, b.Lng),
		MaxLat: math.Max(a.Lat, b.Lat),
		MaxLng: math.Max(a.Lng, b.Lng),
	}
}

// Contains reports whether the point lies within the box, borders included.
func (r Rect) Contains(p Point) bool {
	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat &&
		p.Lng >= r.MinLng && p.Lng <= r.MaxLng
}

// Extend grows the box to include the point.
func (r Rect) Extend(p Point) Rect {
	return Rect{
		MinLat: math.Min(r.MinLat, p.Lat),
		MinLng: math.Min(r.MinLng, p.Lng),
		MaxLat: math.Max(r.MaxLat, p.Lat),
		MaxLng: math.Max(r.MaxLng, p.Lng),
	}
}

// RectAround returns the envelope of a set of points.
func RectAround(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := NewRect(points[0], points[0])
	for _, p := range points[1:] {
		r = r.Extend(p)
	}
	return r
}

// Centroid returns the arithmetic mean of the points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lng: lng / n}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
