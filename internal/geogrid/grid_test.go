package geogrid

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

var berlin = gridrank.GeoPoint{Lat: 52.52, Lng: 13.405}

func rank(v int) *int { return &v }

func TestBuildCoversLatticeExactlyOnce(t *testing.T) {
	t.Parallel()

	for _, size := range []int{3, 5} {
		size := size
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			t.Parallel()

			points, err := Build(berlin, size, 1.5)
			require.NoError(t, err)
			require.Len(t, points, size*size)

			half := (size - 1) / 2
			seen := make(map[[2]int]bool)
			for i, p := range points {
				assert.Nil(t, p.Rank)
				assert.GreaterOrEqual(t, p.X, -half)
				assert.LessOrEqual(t, p.X, half)
				assert.GreaterOrEqual(t, p.Y, -half)
				assert.LessOrEqual(t, p.Y, half)
				key := [2]int{p.X, p.Y}
				assert.False(t, seen[key], "duplicate lattice cell %v", key)
				seen[key] = true

				// row-major: y outer, x inner
				assert.Equal(t, i/size-half, p.Y)
				assert.Equal(t, i%size-half, p.X)
			}
			assert.Len(t, seen, size*size)
		})
	}
}

func TestBuildCenterCellMatchesCenter(t *testing.T) {
	t.Parallel()

	points, err := Build(berlin, 3, 1.5)
	require.NoError(t, err)
	center := points[4]
	assert.Equal(t, 0, center.X)
	assert.Equal(t, 0, center.Y)
	assert.Equal(t, berlin.Lat, center.Lat)
	assert.Equal(t, berlin.Lng, center.Lng)
}

func TestBuildRoundsToSixDecimals(t *testing.T) {
	t.Parallel()

	points, err := Build(gridrank.GeoPoint{Lat: 48.1372, Lng: 11.5756}, 5, 0.7)
	require.NoError(t, err)
	for _, p := range points {
		assert.InDelta(t, p.Lat, Round6(p.Lat), 1e-12)
		assert.InDelta(t, p.Lng, Round6(p.Lng), 1e-12)
	}
}

func TestBuildRejectsInvalidShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		size   int
		stepKm float64
	}{
		{name: "even size", size: 4, stepKm: 1},
		{name: "zero size", size: 0, stepKm: 1},
		{name: "single cell", size: 1, stepKm: 1},
		{name: "more than 25 points", size: 7, stepKm: 1},
		{name: "non-positive step", size: 3, stepKm: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(berlin, tt.size, tt.stepKm)
			require.ErrorIs(t, err, gridrank.ErrValidation)
		})
	}
}

func TestKmToDegLngAppliesLatitudeCompression(t *testing.T) {
	t.Parallel()

	dLat := KmToDegLat(1.5)
	dLng := KmToDegLng(1.5, 52.5)

	assert.InDelta(t, 1.5/111, dLat, 1e-12)
	assert.Greater(t, dLng, dLat)
	assert.InDelta(t, dLat/math.Cos(52.5*math.Pi/180), dLng, 1e-12)
}

func TestKmToDegLngPoleFallback(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, KmToDegLat(2), KmToDegLng(2, 90), 1e-9)
	assert.InDelta(t, KmToDegLat(2), KmToDegLng(2, -90), 1e-9)
	assert.InDelta(t, KmToDegLat(2), KmToDegLng(2, math.NaN()), 1e-9)
}

func TestOddGridSize(t *testing.T) {
	t.Parallel()

	tests := map[int]int{0: 3, 1: 3, 3: 3, 4: 3, 5: 5, 6: 5, 99: 5}
	for in, want := range tests {
		assert.Equal(t, want, OddGridSize(in), "OddGridSize(%d)", in)
	}
}

func TestMatrixReconstructsPointsRowMajor(t *testing.T) {
	t.Parallel()

	points, err := Build(berlin, 3, 1)
	require.NoError(t, err)
	ranks := []*int{rank(1), nil, rank(3), nil, rank(5), rank(2), nil, nil, rank(20)}
	for i := range points {
		points[i].Rank = ranks[i]
	}

	matrix := Matrix(points, 3)
	require.Len(t, matrix, 3)

	var flat []*int
	for _, row := range matrix {
		require.Len(t, row, 3)
		flat = append(flat, row...)
	}
	assert.Equal(t, ranks, flat)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	points := []gridrank.GridPoint{
		{Rank: rank(1)}, {}, {Rank: rank(3)}, {}, {Rank: rank(5)},
	}
	summary := Summarize(points)

	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 5, summary.Total)
	require.NotNil(t, summary.Best)
	require.NotNil(t, summary.Worst)
	require.NotNil(t, summary.Avg)
	assert.Equal(t, 1, *summary.Best)
	assert.Equal(t, 5, *summary.Worst)
	assert.Equal(t, 3.0, *summary.Avg)
}

func TestSummarizeRoundsAverage(t *testing.T) {
	t.Parallel()

	summary := Summarize([]gridrank.GridPoint{{Rank: rank(1)}, {Rank: rank(2)}, {Rank: rank(2)}})
	require.NotNil(t, summary.Avg)
	assert.Equal(t, 1.67, *summary.Avg)
}

func TestSummarizeNothingRanked(t *testing.T) {
	t.Parallel()

	summary := Summarize([]gridrank.GridPoint{{}, {}})
	assert.Equal(t, 0, summary.Found)
	assert.Equal(t, 2, summary.Total)
	assert.Nil(t, summary.Best)
	assert.Nil(t, summary.Worst)
	assert.Nil(t, summary.Avg)
}
