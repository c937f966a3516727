// Package postgres provides the Postgres-backed scan store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

const defaultTable = "grid_rank_scans"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ScanStore implements gridrank.ScanStore on Postgres. Summary, matrix and
// points are stored as jsonb; everything else has its own column.
type ScanStore struct {
	pool  pool
	table string
}

// NewScanStore connects to Postgres using cfg.
func NewScanStore(ctx context.Context, cfg Config) (*ScanStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ScanStore{pool: p, table: table}, nil
}

// NewScanStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewScanStoreWithPool(p pool, table string) (*ScanStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ScanStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ScanStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *ScanStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SaveScan inserts a scan row.
func (s *ScanStore) SaveScan(ctx context.Context, record gridrank.ScanRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: record id is required", gridrank.ErrPersistence)
	}
	scan := record.Scan
	summary, err := json.Marshal(scan.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	matrix, err := json.Marshal(scan.Matrix)
	if err != nil {
		return fmt.Errorf("marshal matrix: %w", err)
	}
	points, err := json.Marshal(scan.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, place_id, place_name, website, domain, query, near,
	center_lat, center_lng, grid_size, step_km, radius, result_limit,
	summary, matrix, points, generated_at, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)`, s.table)

	args := []any{
		record.ID,
		scan.PlaceID,
		nullable(record.PlaceName),
		nullable(record.Website),
		nullable(record.Domain),
		scan.Query,
		scan.Near,
		scan.Center.Lat,
		scan.Center.Lng,
		scan.GridSize,
		scan.StepKm,
		scan.Radius,
		scan.Limit,
		summary,
		matrix,
		points,
		scan.GeneratedAt,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert scan: %w", gridrank.ErrPersistence, err)
	}
	return nil
}

const summaryColumns = `id::text, place_id, coalesce(place_name, ''), coalesce(website, ''), coalesce(domain, ''),
	query, near, center_lat, center_lng, grid_size, step_km, radius, result_limit, summary,
	generated_at, created_at`

// ListScans returns the newest scans first. The text filter is a
// case-insensitive substring match over place name, domain, query and near,
// applied before the limit.
func (s *ScanStore) ListScans(ctx context.Context, filter gridrank.ScanListFilter) ([]gridrank.ScanRecord, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE $1 = '' OR strpos(lower(
	coalesce(place_name, '') || ' ' || coalesce(domain, '') || ' ' || query || ' ' || near
), $1) > 0
ORDER BY created_at DESC
LIMIT $2`, summaryColumns, s.table)

	rows, err := s.pool.Query(ctx, query, strings.ToLower(strings.TrimSpace(filter.Text)), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list scans: %w", gridrank.ErrPersistence, err)
	}
	defer rows.Close()

	records := make([]gridrank.ScanRecord, 0)
	for rows.Next() {
		var (
			rec     gridrank.ScanRecord
			summary []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Scan.PlaceID, &rec.PlaceName, &rec.Website, &rec.Domain,
			&rec.Scan.Query, &rec.Scan.Near, &rec.Scan.Center.Lat, &rec.Scan.Center.Lng,
			&rec.Scan.GridSize, &rec.Scan.StepKm, &rec.Scan.Radius, &rec.Scan.Limit, &summary,
			&rec.Scan.GeneratedAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan row: %w", gridrank.ErrPersistence, err)
		}
		decodeJSON(summary, &rec.Scan.Summary)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate scans: %w", gridrank.ErrPersistence, err)
	}
	return records, nil
}

// GetScan loads one scan including its points and matrix.
func (s *ScanStore) GetScan(ctx context.Context, id string) (gridrank.ScanRecord, error) {
	query := fmt.Sprintf(`
SELECT %s, matrix, points
FROM %s
WHERE id::text = $1`, summaryColumns, s.table)

	var (
		rec                     gridrank.ScanRecord
		summary, matrix, points []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Scan.PlaceID, &rec.PlaceName, &rec.Website, &rec.Domain,
		&rec.Scan.Query, &rec.Scan.Near, &rec.Scan.Center.Lat, &rec.Scan.Center.Lng,
		&rec.Scan.GridSize, &rec.Scan.StepKm, &rec.Scan.Radius, &rec.Scan.Limit, &summary,
		&rec.Scan.GeneratedAt, &rec.CreatedAt, &matrix, &points,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return gridrank.ScanRecord{}, fmt.Errorf("scan %s: %w", id, gridrank.ErrNotFound)
	}
	if err != nil {
		return gridrank.ScanRecord{}, fmt.Errorf("%w: get scan: %w", gridrank.ErrPersistence, err)
	}
	decodeJSON(summary, &rec.Scan.Summary)
	decodeJSON(matrix, &rec.Scan.Matrix)
	decodeJSON(points, &rec.Scan.Points)
	return rec, nil
}

// decodeJSON leaves dst untouched when raw is empty or malformed, so one bad
// column does not hide the rest of the row.
func decodeJSON(raw []byte, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
