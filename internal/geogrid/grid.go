// Package geogrid builds square sampling lattices around a center coordinate
// and aggregates the ranks sampled on them.
package geogrid

import (
	"math"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

const (
	// KmPerDegree approximates the length of one degree of latitude.
	KmPerDegree = 111.0
	// MaxPoints caps upstream calls per scan.
	MaxPoints = 25
	// MinGridSize and MaxGridSize bound the accepted lattice edge length.
	MinGridSize = 3
	MaxGridSize = 5
)

// KmToDegLat converts a north-south distance to degrees of latitude.
func KmToDegLat(km float64) float64 {
	return km / KmPerDegree
}

// KmToDegLng converts an east-west distance to degrees of longitude at the
// given latitude. Near the poles, where cos(lat) collapses, it falls back to
// the latitude conversion.
func KmToDegLng(km, atLat float64) float64 {
	denom := KmPerDegree * math.Cos(atLat*math.Pi/180)
	if math.IsNaN(denom) || math.IsInf(denom, 0) || math.Abs(denom) < 1e-9 {
		return km / KmPerDegree
	}
	return km / denom
}

// OddGridSize clamps a requested size into [MinGridSize, MaxGridSize] and
// rounds even values down to the next odd size.
func OddGridSize(requested int) int {
	size := max(MinGridSize, min(MaxGridSize, requested))
	if size%2 == 0 {
		size--
	}
	return size
}

// Build returns gridSize² unranked points row-major (y outer, x inner) with
// offsets in [-half, +half]. Coordinates are rounded to 6 decimals so they are
// stable inside cache keys.
func Build(center gridrank.GeoPoint, gridSize int, stepKm float64) ([]gridrank.GridPoint, error) {
	if gridSize < MinGridSize || gridSize%2 == 0 {
		return nil, gridrank.Invalid("gridSize must be odd, got %d", gridSize)
	}
	if gridSize*gridSize > MaxPoints {
		return nil, gridrank.Invalid("gridSize %d exceeds %d sample points", gridSize, MaxPoints)
	}
	if stepKm <= 0 || math.IsNaN(stepKm) || math.IsInf(stepKm, 0) {
		return nil, gridrank.Invalid("stepKm must be > 0")
	}

	half := (gridSize - 1) / 2
	dLat := KmToDegLat(stepKm)
	dLng := KmToDegLng(stepKm, center.Lat)

	points := make([]gridrank.GridPoint, 0, gridSize*gridSize)
	for y := -half; y <= half; y++ {
		for x := -half; x <= half; x++ {
			points = append(points, gridrank.GridPoint{
				X: x,
				Y: y,
				GeoPoint: gridrank.GeoPoint{
					Lat: Round6(center.Lat + float64(y)*dLat),
					Lng: Round6(center.Lng + float64(x)*dLng),
				},
			})
		}
	}
	return points, nil
}

// Round6 rounds to 6 decimal places.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Matrix reshapes points row-major into gridSize rows of gridSize ranks.
func Matrix(points []gridrank.GridPoint, gridSize int) [][]*int {
	if gridSize <= 0 {
		return [][]*int{}
	}
	rows := make([][]*int, 0, gridSize)
	for row := 0; row < gridSize; row++ {
		start := row * gridSize
		if start >= len(points) {
			break
		}
		end := min(start+gridSize, len(points))
		cells := make([]*int, 0, end-start)
		for _, p := range points[start:end] {
			cells = append(cells, p.Rank)
		}
		rows = append(rows, cells)
	}
	return rows
}

// Summarize aggregates the ranked points. Avg is rounded to 2 decimals.
func Summarize(points []gridrank.GridPoint) gridrank.RankSummary {
	summary := gridrank.RankSummary{Total: len(points)}
	sum := 0
	for _, p := range points {
		if p.Rank == nil {
			continue
		}
		r := *p.Rank
		summary.Found++
		sum += r
		if summary.Best == nil || r < *summary.Best {
			summary.Best = intPtr(r)
		}
		if summary.Worst == nil || r > *summary.Worst {
			summary.Worst = intPtr(r)
		}
	}
	if summary.Found > 0 {
		avg := math.Round(float64(sum)/float64(summary.Found)*100) / 100
		summary.Avg = &avg
	}
	return summary
}

func intPtr(v int) *int { return &v }
