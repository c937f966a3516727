package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

// ScanStore keeps scan records in memory. It is used when no database is
// configured.
type ScanStore struct {
	mu    sync.RWMutex
	scans map[string]gridrank.ScanRecord
}

// NewScanStore constructs an empty ScanStore.
func NewScanStore() *ScanStore {
	return &ScanStore{scans: make(map[string]gridrank.ScanRecord)}
}

// SaveScan stores a record. IDs must be unique.
func (s *ScanStore) SaveScan(_ context.Context, record gridrank.ScanRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: record id is required", gridrank.ErrPersistence)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[record.ID]; exists {
		return fmt.Errorf("%w: scan %s already exists", gridrank.ErrPersistence, record.ID)
	}
	s.scans[record.ID] = record
	return nil
}

// ListScans returns the newest matching records first, without points or
// matrix, mirroring the Postgres store.
func (s *ScanStore) ListScans(_ context.Context, filter gridrank.ScanListFilter) ([]gridrank.ScanRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(filter.Text))

	s.mu.RLock()
	out := make([]gridrank.ScanRecord, 0, len(s.scans))
	for _, rec := range s.scans {
		if needle != "" && !strings.Contains(haystack(rec), needle) {
			continue
		}
		rec.Scan.Points = nil
		rec.Scan.Matrix = nil
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetScan returns a full record by ID.
func (s *ScanStore) GetScan(_ context.Context, id string) (gridrank.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scans[id]
	if !ok {
		return gridrank.ScanRecord{}, fmt.Errorf("scan %s: %w", id, gridrank.ErrNotFound)
	}
	return rec, nil
}

func haystack(rec gridrank.ScanRecord) string {
	return strings.ToLower(strings.Join([]string{rec.PlaceName, rec.Domain, rec.Scan.Query, rec.Scan.Near}, " "))
}
