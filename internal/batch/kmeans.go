package batch

import (
	"math"

	"dashroute/internal/geo"
	"dashroute/internal/model"
)

const defaultIterations = 50

// KMeans labels each point with one of k clusters. Seeds are picked
// farthest-first starting at point 0, so the result is deterministic. k is
// clamped to [1, len(points)].
func KMeans(points []model.GeoPoint, k, iterations int) []int {
	n := len(points)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}
	if iterations <= 0 {
		iterations = defaultIterations
	}

	centers := seedFarthestFirst(points, k)
	for i := range labels {
		labels[i] = -1
	}
	for it := 0; it < iterations; it++ {
		changed := false
		for i, p := range points {
			best := nearest(centers, p)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = recenter(points, labels, centers)
	}
	return labels
}

func seedFarthestFirst(points []model.GeoPoint, k int) []model.GeoPoint {
	seeds := []int{0}
	minDist := make([]float64, len(points))
	for i, p := range points {
		minDist[i] = geo.HaversineMeters(p, points[0])
	}
	for len(seeds) < k {
		maxd, maxi := -1.0, -1
		for i, d := range minDist {
			if d > maxd {
				maxd, maxi = d, i
			}
		}
		// Remaining points all coincide with a seed.
		if maxi < 0 || maxd <= 0 {
			break
		}
		seeds = append(seeds, maxi)
		for i, p := range points {
			if d := geo.HaversineMeters(p, points[maxi]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	centers := make([]model.GeoPoint, len(seeds))
	for i, s := range seeds {
		centers[i] = points[s]
	}
	return centers
}

func nearest(centers []model.GeoPoint, p model.GeoPoint) int {
	best, bestd := 0, math.MaxFloat64
	for ci, c := range centers {
		if d := geo.HaversineMeters(p, c); d < bestd {
			best, bestd = ci, d
		}
	}
	return best
}

func recenter(points []model.GeoPoint, labels []int, prev []model.GeoPoint) []model.GeoPoint {
	sums := make([]model.GeoPoint, len(prev))
	counts := make([]int, len(prev))
	for i, p := range points {
		l := labels[i]
		sums[l].Lat += p.Lat
		sums[l].Lng += p.Lng
		counts[l]++
	}
	out := make([]model.GeoPoint, len(prev))
	for i := range out {
		if counts[i] == 0 {
			out[i] = prev[i]
			continue
		}
		out[i] = model.GeoPoint{Lat: sums[i].Lat / float64(counts[i]), Lng: sums[i].Lng / float64(counts[i])}
	}
	return out
}
