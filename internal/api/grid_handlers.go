package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/gridrank/internal/scan"
)

const maxBodyBytes = 1 << 20

func (s *Server) gridRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.scans.Scan(r.Context(), scan.Request{
		Query:   q.Get("q"),
		Near:    q.Get("near"),
		PlaceID: q.Get("placeId"),
		Options: optionsFromQuery(q),
		Save:    flag(q.Get("save")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Query    string   `json:"q"`
	Near     string   `json:"near"`
	PlaceIDs []string `json:"placeIds"`
	GridSize int      `json:"gridSize"`
	StepKm   float64  `json:"stepKm"`
	Radius   int      `json:"radius"`
	Limit    int      `json:"limit"`
}

func (s *Server) gridRankBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.scans.Batch(r.Context(), scan.BatchRequest{
		Query:    req.Query,
		Near:     req.Near,
		PlaceIDs: req.PlaceIDs,
		Options: scan.Options{
			GridSize: req.GridSize,
			StepKm:   req.StepKm,
			Radius:   req.Radius,
			Limit:    req.Limit,
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.scans.List(r.Context(), q.Get("q"), intParam(q.Get("limit")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]scanSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, toScanSummary(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanDetail(rec))
}

// optionsFromQuery reads grid options; unparsable values fall back to defaults.
func optionsFromQuery(q url.Values) scan.Options {
	return scan.Options{
		GridSize: intParam(q.Get("gridSize")),
		StepKm:   floatParam(q.Get("stepKm")),
		Radius:   intParam(q.Get("radius")),
		Limit:    intParam(q.Get("limit")),
	}
}

func intParam(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

func floatParam(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func flag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
