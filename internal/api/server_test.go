package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/auth"
	"github.com/JakeFAU/gridrank/internal/gridrank"
	"github.com/JakeFAU/gridrank/internal/leadsearch"
	"github.com/JakeFAU/gridrank/internal/scan"
)

func TestServer_GridRank_ParsesQuery(t *testing.T) {
	t.Parallel()

	scans := &fakeScanner{
		scanFn: func(req scan.Request) (scan.Result, error) {
			return scan.Result{
				Cached:   true,
				GridScan: gridrank.GridScan{Query: req.Query, Near: req.Near, PlaceID: req.PlaceID, GridSize: 3},
			}, nil
		},
	}
	server := newTestServer(scans, nil)

	rec := serve(t, server, http.MethodGet,
		"/grid-rank?q=cafe&near=Berlin&placeId=p1&gridSize=5&stepKm=2.5&radius=abc&limit=12&save=1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, scans.scanReqs, 1)
	got := scans.scanReqs[0]
	assert.Equal(t, "cafe", got.Query)
	assert.Equal(t, "Berlin", got.Near)
	assert.Equal(t, "p1", got.PlaceID)
	assert.True(t, got.Save)
	assert.Equal(t, scan.Options{GridSize: 5, StepKm: 2.5, Radius: 0, Limit: 12}, got.Options)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "cafe", body["query"])
	assert.Contains(t, body, "savedScanId")
	assert.Nil(t, body["savedScanId"])
}

func TestServer_GridRank_NonNumericStepIsDefault(t *testing.T) {
	t.Parallel()

	scans := &fakeScanner{}
	server := newTestServer(scans, nil)

	serve(t, server, http.MethodGet, "/grid-rank?q=a&near=b&placeId=c&stepKm=NaN&save=0", nil)

	require.Len(t, scans.scanReqs, 1)
	assert.Zero(t, scans.scanReqs[0].Options.StepKm)
	assert.False(t, scans.scanReqs[0].Save)
}

func TestServer_GridRank_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", gridrank.Invalid("q is required"), http.StatusBadRequest, "q is required"},
		{"missing key", gridrank.Misconfigured("google places api key is not configured"), http.StatusInternalServerError, "google places api key is not configured"},
		{"geocode", fmt.Errorf("%w: near: boom", gridrank.ErrGeocodeFailed), http.StatusBadGateway, ""},
		{"sampling", fmt.Errorf("%w: all 9 grid samples failed", gridrank.ErrUpstream), http.StatusBadGateway, ""},
		{"unavailable", fmt.Errorf("store: %w", gridrank.ErrUnavailable), http.StatusServiceUnavailable, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scans := &fakeScanner{scanFn: func(scan.Request) (scan.Result, error) { return scan.Result{}, tt.err }}
			rec := serve(t, newTestServer(scans, nil), http.MethodGet, "/grid-rank?q=a", nil)

			require.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			want := tt.msg
			if want == "" {
				want = tt.err.Error()
			}
			assert.Equal(t, want, body["error"])
		})
	}
}

func TestServer_GridRankBatch_DecodesBody(t *testing.T) {
	t.Parallel()

	saved := "scan-1"
	scans := &fakeScanner{
		batchFn: func(req scan.BatchRequest) (scan.BatchResult, error) {
			return scan.BatchResult{
				Query:     req.Query,
				Near:      req.Near,
				Requested: len(req.PlaceIDs),
				Processed: len(req.PlaceIDs),
				Results: []scan.BatchItem{
					{PlaceID: "a", SavedScanID: &saved, GridSize: 3},
					{PlaceID: "b", Error: "upstream request failed"},
				},
			}, nil
		},
	}
	body := []byte(`{"q":"cafe","near":"Berlin","placeIds":["a","b"],"gridSize":3,"stepKm":1,"radius":3000,"limit":15}`)
	rec := serve(t, newTestServer(scans, nil), http.MethodPost, "/grid-rank/batch", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, scans.batchReqs, 1)
	assert.Equal(t, []string{"a", "b"}, scans.batchReqs[0].PlaceIDs)
	assert.Equal(t, scan.Options{GridSize: 3, StepKm: 1, Radius: 3000, Limit: 15}, scans.batchReqs[0].Options)

	var out struct {
		Requested int              `json:"requested"`
		Results   []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Requested)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "scan-1", out.Results[0]["savedScanId"])
	assert.Equal(t, "upstream request failed", out.Results[1]["error"])
	assert.NotContains(t, out.Results[1], "summary")
}

func TestServer_GridRankBatch_InvalidJSON(t *testing.T) {
	t.Parallel()

	scans := &fakeScanner{}
	rec := serve(t, newTestServer(scans, nil), http.MethodPost, "/grid-rank/batch", []byte("{invalid"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
	assert.Empty(t, scans.batchReqs)
}

func TestServer_GridRankBatch_EmptyBodyReachesValidation(t *testing.T) {
	t.Parallel()

	scans := &fakeScanner{
		batchFn: func(scan.BatchRequest) (scan.BatchResult, error) {
			return scan.BatchResult{}, gridrank.Invalid("q is required")
		},
	}
	rec := serve(t, newTestServer(scans, nil), http.MethodPost, "/grid-rank/batch", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "q is required")
}

func TestServer_ListScans(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	best := 2
	scans := &fakeScanner{
		listFn: func(text string, limit int) ([]gridrank.ScanRecord, error) {
			return []gridrank.ScanRecord{{
				ID:        "id-1",
				PlaceName: "Cafe Central",
				Scan: gridrank.GridScan{
					Query: "cafe", Near: "Berlin", PlaceID: "p1",
					Center:   gridrank.GeoPoint{Lat: 52.52, Lng: 13.405},
					GridSize: 3, StepKm: 1.5, Radius: 5000, Limit: 20,
					Summary: gridrank.RankSummary{Found: 1, Total: 9, Best: &best, Worst: &best},
				},
				CreatedAt: created,
			}}, nil
		},
	}
	rec := serve(t, newTestServer(scans, nil), http.MethodGet, "/grid-scans?q=berlin&limit=50", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []listCall{{text: "berlin", limit: 50}}, scans.listCalls)

	var out struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 1)
	item := out.Items[0]
	assert.Equal(t, "id-1", item["id"])
	assert.Equal(t, "p1", item["place_id"])
	assert.Equal(t, "Cafe Central", item["place_name"])
	assert.Nil(t, item["domain"])
	assert.Equal(t, 52.52, item["center_lat"])
	assert.Equal(t, float64(20), item["result_limit"])
	assert.Equal(t, "2026-03-01T12:00:00Z", item["created_at"])
	assert.NotContains(t, item, "matrix")
	assert.NotContains(t, item, "points")
}

func TestServer_ListScans_EmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeScanner{}, nil), http.MethodGet, "/grid-scans?limit=oops", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestServer_GetScan(t *testing.T) {
	t.Parallel()

	rank := 1
	scans := &fakeScanner{
		getFn: func(id string) (gridrank.ScanRecord, error) {
			if id != "id-1" {
				return gridrank.ScanRecord{}, fmt.Errorf("get scan: %w", gridrank.ErrNotFound)
			}
			return gridrank.ScanRecord{
				ID: id,
				Scan: gridrank.GridScan{
					PlaceID:  "p1",
					GridSize: 3,
					Matrix:   [][]*int{{nil, &rank, nil}},
					Points:   []gridrank.GridPoint{{X: -1, Y: -1}},
				},
			}, nil
		},
	}
	server := newTestServer(scans, nil)

	rec := serve(t, server, http.MethodGet, "/grid-scans/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "id-1", out["id"])
	assert.Equal(t, []any{[]any{nil, float64(1), nil}}, out["matrix"])
	assert.Len(t, out["points"], 1)

	rec = serve(t, server, http.MethodGet, "/grid-scans/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"scan not found"}`, rec.Body.String())
}

func TestServer_LeadSearch(t *testing.T) {
	t.Parallel()

	leads := &fakeLeads{}
	rec := serve(t, newTestServer(&fakeScanner{}, leads), http.MethodGet,
		"/lead-search?q=friseur&near=Hamburg&limit=5&pagespeed=1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, leads.reqs, 1)
	assert.Equal(t, leadsearch.Request{Query: "friseur", Near: "Hamburg", Limit: 5, PageSpeed: true}, leads.reqs[0])
	assert.JSONEq(t, `{"query":"friseur in Hamburg","items":[]}`, rec.Body.String())
}

func TestServer_LeadSearch_NotConfigured(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeScanner{}, nil), http.MethodGet, "/lead-search?q=x", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	healthy := NewServer(Config{}, Deps{Scans: &fakeScanner{}}, zap.NewNop())
	rec := serve(t, healthy, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(t, healthy, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")

	down := NewServer(Config{}, Deps{
		Scans: &fakeScanner{},
		Ready: func(context.Context) error { return errors.New("db down") },
	}, zap.NewNop())
	rec = serve(t, down, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScanner{}, nil)
	serve(t, server, http.MethodGet, "/healthz", nil)
	rec := serve(t, server, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gridrank_http_requests_total")
}

func TestServer_AuthMiddleware(t *testing.T) {
	t.Parallel()

	manager, err := auth.New("secret", "gridrank")
	require.NoError(t, err)
	token, err := manager.Issue("ops@example.com", time.Hour, time.Now())
	require.NoError(t, err)
	server := NewServer(Config{}, Deps{Scans: &fakeScanner{}, Auth: manager}, zap.NewNop())

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "health is public", path: "/healthz", status: http.StatusOK},
		{name: "metrics is public", path: "/metrics", status: http.StatusOK},
		{name: "missing token", path: "/grid-scans", status: http.StatusUnauthorized},
		{name: "bad token", path: "/grid-scans", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid token", path: "/grid-scans", header: "Bearer " + token, status: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	scans := &fakeScanner{scanFn: func(scan.Request) (scan.Result, error) { panic("kaboom") }}
	rec := serve(t, newTestServer(scans, nil), http.MethodGet, "/grid-rank?q=a&near=b&placeId=c", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeScanner{}, nil)
	rec := serve(t, server, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type listCall struct {
	text  string
	limit int
}

type fakeScanner struct {
	mu        sync.Mutex
	scanFn    func(scan.Request) (scan.Result, error)
	batchFn   func(scan.BatchRequest) (scan.BatchResult, error)
	listFn    func(text string, limit int) ([]gridrank.ScanRecord, error)
	getFn     func(id string) (gridrank.ScanRecord, error)
	scanReqs  []scan.Request
	batchReqs []scan.BatchRequest
	listCalls []listCall
}

func (f *fakeScanner) Scan(_ context.Context, req scan.Request) (scan.Result, error) {
	f.mu.Lock()
	f.scanReqs = append(f.scanReqs, req)
	f.mu.Unlock()
	if f.scanFn == nil {
		return scan.Result{}, nil
	}
	return f.scanFn(req)
}

func (f *fakeScanner) Batch(_ context.Context, req scan.BatchRequest) (scan.BatchResult, error) {
	f.mu.Lock()
	f.batchReqs = append(f.batchReqs, req)
	f.mu.Unlock()
	if f.batchFn == nil {
		return scan.BatchResult{}, nil
	}
	return f.batchFn(req)
}

func (f *fakeScanner) List(_ context.Context, text string, limit int) ([]gridrank.ScanRecord, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, listCall{text: text, limit: limit})
	f.mu.Unlock()
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(text, limit)
}

func (f *fakeScanner) Get(_ context.Context, id string) (gridrank.ScanRecord, error) {
	if f.getFn == nil {
		return gridrank.ScanRecord{}, gridrank.ErrNotFound
	}
	return f.getFn(id)
}

type fakeLeads struct {
	mu   sync.Mutex
	reqs []leadsearch.Request
}

func (f *fakeLeads) Search(_ context.Context, req leadsearch.Request) (leadsearch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return leadsearch.Response{Query: req.Query + " in " + req.Near, Items: []leadsearch.Item{}}, nil
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(scans GridScanner, leads LeadSearcher) *Server {
	deps := Deps{Scans: scans}
	if leads != nil {
		deps.Leads = leads
	}
	return NewServer(Config{RequestTimeout: 5 * time.Second}, deps, zap.NewNop())
}

func serve(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
