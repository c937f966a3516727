package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

const archiveContentType = "application/json"

// persist stores scan with place metadata, then archives a JSON snapshot and
// announces it. Only the store write can fail the call.
func (s *Service) persist(ctx context.Context, scan gridrank.GridScan) (string, error) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("%w: generate scan id: %w", gridrank.ErrPersistence, err)
	}

	rec := gridrank.ScanRecord{
		ID:        id,
		Scan:      scan,
		CreatedAt: s.deps.Clock.Now(),
	}
	if details := s.lookupDetails(ctx, scan.PlaceID); details != nil {
		rec.PlaceName = details.Name
		rec.Website = details.Website
		rec.Domain = gridrank.NormalizeDomain(details.Website)
	}

	if err := s.deps.Store.SaveScan(ctx, rec); err != nil {
		return "", fmt.Errorf("save scan: %w", err)
	}

	uri := s.archive(ctx, id, scan)
	s.publish(ctx, rec, uri)
	return id, nil
}

func (s *Service) lookupDetails(ctx context.Context, placeID string) *gridrank.PlaceDetails {
	if s.deps.Details == nil {
		return nil
	}
	details, err := s.deps.Details.Details(ctx, placeID)
	if err != nil {
		s.logger.Warn("place details lookup failed", zap.String("place_id", placeID), zap.Error(err))
		return nil
	}
	return details
}

func (s *Service) archivePath(scanID, hash string) string {
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", scanID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, scanID, hash)
}

// archive writes the scan snapshot to the blob store and returns its URI, or
// "" when archiving is disabled or failed.
func (s *Service) archive(ctx context.Context, scanID string, scan gridrank.GridScan) string {
	if s.deps.Blobs == nil || s.deps.Hasher == nil {
		return ""
	}
	body, err := json.Marshal(scan)
	if err != nil {
		s.logger.Warn("encode scan snapshot failed", zap.String("scan_id", scanID), zap.Error(err))
		return ""
	}
	hash, err := s.deps.Hasher.Hash(body)
	if err != nil {
		s.logger.Warn("hash scan snapshot failed", zap.String("scan_id", scanID), zap.Error(err))
		return ""
	}
	uri, err := s.deps.Blobs.PutObject(ctx, s.archivePath(scanID, hash), archiveContentType, body)
	if err != nil {
		s.logger.Warn("archive scan snapshot failed", zap.String("scan_id", scanID), zap.Error(err))
		return ""
	}
	return uri
}

func (s *Service) publish(ctx context.Context, rec gridrank.ScanRecord, archiveURI string) {
	if s.cfg.Topic == "" || s.deps.Publisher == nil {
		return
	}
	event := gridrank.ScanCompleted{
		ScanID:      rec.ID,
		PlaceID:     rec.Scan.PlaceID,
		Query:       rec.Scan.Query,
		Near:        rec.Scan.Near,
		Found:       rec.Scan.Summary.Found,
		Total:       rec.Scan.Summary.Total,
		ArchiveURI:  archiveURI,
		GeneratedAt: rec.Scan.GeneratedAt,
	}
	msgID, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, event)
	if err != nil {
		s.logger.Warn("publish scan event failed", zap.String("scan_id", rec.ID), zap.Error(err))
		return
	}
	s.logger.Info("scan published",
		zap.String("scan_id", rec.ID),
		zap.String("message_id", msgID),
		zap.String("archive_uri", archiveURI),
	)
}
