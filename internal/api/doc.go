// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /grid-rank and POST /grid-rank/batch run grid scans.
//   - GET /grid-scans and /grid-scans/{id} read persisted scans.
//   - GET /lead-search enriches one text-search page into leads.
//   - GET /healthz, /readyz for probes and GET /metrics for Prometheus.
package api
