// Package main hosts the gridrank entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes grid scans (/grid-rank, /grid-rank/batch), persisted scan reads
//     (/grid-scans), enriched lead search (/lead-search), health probes and Prometheus metrics.
//   - Scan pipeline: the center is geocoded once, a square lattice of points is built around it, and each point
//     runs one location-biased text search with bounded concurrency. The target's position inside each result
//     page becomes that point's rank. Batches scan places strictly one after another.
//   - Caching & quota: geocodes, place details, website intel, PageSpeed snapshots and whole scan responses are
//     held in process-local TTL caches; every Google call first waits on a per-upstream token bucket.
//   - Persistence & fanout: scans go to Postgres (or memory), a JSON snapshot is archived to GCS, a local
//     directory or memory, and a grid_scan.completed event is published to Pub/Sub when a topic is configured.
//
// Quick checklist:
//   - Configure env vars: GRIDRANK_GOOGLE_API_KEY, GRIDRANK_DB_DSN, GRIDRANK_STORAGE_GCS_BUCKET,
//     GRIDRANK_PUBSUB_PROJECT_ID and GRIDRANK_PUBSUB_TOPIC_NAME, GRIDRANK_AUTH_ENABLED with GRIDRANK_AUTH_JWT_SECRET.
//   - Run locally: go run ./cmd/gridrank serve --config config.yaml (or rely solely on env overrides).
//   - One-off scan: go run ./cmd/gridrank scan --q "cafe" --near "Berlin" --place-id <id>.
package main
