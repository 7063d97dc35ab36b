package geo

import (
	"math"
)

const kmeansIterations = 25

// KMeans partitions points into at most k spatial clusters and returns the
// cluster index assigned to each point. Centroid seeding is deterministic
// (evenly spaced over the input) so repeated calls over the same data give
// the same partition. With fewer points than k, every point gets its own
// cluster.
func KMeans(points []Point, k int) []int {
	n := len(points)
	if n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	if k <= 1 {
		return make([]int, n)
	}

	centroids := make([]Point, k)
	for i := range centroids {
		centroids[i] = points[i*n/k]
	}

	assignment := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestDist := math.Inf(1)
			for c, centroid := range centroids {
				// Squared planar distance is enough to rank candidates.
				dLat := p.Lat - centroid.Lat
				dLng := (p.Lng - centroid.Lng) * math.Cos(toRadians(centroid.Lat))
				if d := dLat*dLat + dLng*dLng; d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		sums := make([]Point, k)
		counts := make([]int, k)
		for i, p := range points {
			c := assignment[i]
			sums[c].Lat += p.Lat
			sums[c].Lng += p.Lng
			counts[c]++
		}
		for c := range centroids {
			if counts[c] > 0 {
				centroids[c] = Point{
					Lat: sums[c].Lat / float64(counts[c]),
					Lng: sums[c].Lng / float64(counts[c]),
				}
			}
		}
	}

	return assignment
}
