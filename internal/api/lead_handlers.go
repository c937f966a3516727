package api

import (
	"net/http"

	"github.com/JakeFAU/gridrank/internal/leadsearch"
)

func (s *Server) leadSearch(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		writeError(w, http.StatusServiceUnavailable, "lead search is not configured")
		return
	}
	q := r.URL.Query()
	res, err := s.leads.Search(r.Context(), leadsearch.Request{
		Query:     q.Get("q"),
		Near:      q.Get("near"),
		Limit:     intParam(q.Get("limit")),
		PageSpeed: flag(q.Get("pagespeed")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
