package api

import (
	"time"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

// scanSummary is one row of GET /grid-scans, named after the stored columns.
type scanSummary struct {
	ID          string               `json:"id"`
	PlaceID     string               `json:"place_id"`
	PlaceName   *string              `json:"place_name"`
	Website     *string              `json:"website"`
	Domain      *string              `json:"domain"`
	Query       string               `json:"query"`
	Near        string               `json:"near"`
	CenterLat   float64              `json:"center_lat"`
	CenterLng   float64              `json:"center_lng"`
	GridSize    int                  `json:"grid_size"`
	StepKm      float64              `json:"step_km"`
	Radius      int                  `json:"radius"`
	ResultLimit int                  `json:"result_limit"`
	Summary     gridrank.RankSummary `json:"summary"`
	GeneratedAt time.Time            `json:"generated_at"`
	CreatedAt   time.Time            `json:"created_at"`
}

// scanDetail adds the full lattice to a summary.
type scanDetail struct {
	scanSummary
	Matrix [][]*int             `json:"matrix"`
	Points []gridrank.GridPoint `json:"points"`
}

func toScanSummary(rec gridrank.ScanRecord) scanSummary {
	sc := rec.Scan
	return scanSummary{
		ID:          rec.ID,
		PlaceID:     sc.PlaceID,
		PlaceName:   nullable(rec.PlaceName),
		Website:     nullable(rec.Website),
		Domain:      nullable(rec.Domain),
		Query:       sc.Query,
		Near:        sc.Near,
		CenterLat:   sc.Center.Lat,
		CenterLng:   sc.Center.Lng,
		GridSize:    sc.GridSize,
		StepKm:      sc.StepKm,
		Radius:      sc.Radius,
		ResultLimit: sc.Limit,
		Summary:     sc.Summary,
		GeneratedAt: sc.GeneratedAt,
		CreatedAt:   rec.CreatedAt,
	}
}

func toScanDetail(rec gridrank.ScanRecord) scanDetail {
	matrix := rec.Scan.Matrix
	if matrix == nil {
		matrix = [][]*int{}
	}
	points := rec.Scan.Points
	if points == nil {
		points = []gridrank.GridPoint{}
	}
	return scanDetail{scanSummary: toScanSummary(rec), Matrix: matrix, Points: points}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
