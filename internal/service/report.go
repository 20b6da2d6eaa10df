package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-overlay/internal/metrics"
)

var (
	// ErrUnknownRegion is returned for region ids missing from the base geometry.
	ErrUnknownRegion   = errors.New("unknown region")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrEmptyDetails    = errors.New("details must not be empty")
	ErrInvalidName     = errors.New("invalid file name")
	ErrNoDatabase      = errors.New("no score database configured")
)

// ReportService stores region reports in DuckDB.
type ReportService struct {
	db      *sql.DB
	regions func(id string) bool
	now     func() time.Time
}

// NewReportService stores reports in db. regions validates region ids.
func NewReportService(db *sql.DB, regions func(id string) bool) *ReportService {
	return &ReportService{db: db, regions: regions, now: time.Now}
}

// Submit validates and stores a report.
func (s *ReportService) Submit(ctx context.Context, regionID string, in ReportInput) (Report, error) {
	if !s.regions(regionID) {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownRegion, regionID)
	}
	if !in.Severity.Valid() {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidSeverity, in.Severity)
	}
	details := strings.TrimSpace(in.Details)
	if details == "" {
		return Report{}, ErrEmptyDetails
	}

	r := Report{
		ID:           uuid.NewString(),
		RegionID:     regionID,
		DataSourceID: in.DataSourceID,
		Severity:     in.Severity,
		Details:      details,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, region_id, data_source_id, severity, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.RegionID, r.DataSourceID, string(r.Severity), r.Details, r.CreatedAt)
	if err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	metrics.ReportsTotal.WithLabelValues(string(r.Severity)).Inc()
	return r, nil
}

// List returns a region's reports, newest first.
func (s *ReportService) List(ctx context.Context, regionID string) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region_id, data_source_id, severity, details, created_at
		 FROM reports WHERE region_id = ? ORDER BY created_at DESC, id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := []Report{}
	for rows.Next() {
		var (
			r   Report
			sev string
		)
		if err := rows.Scan(&r.ID, &r.RegionID, &r.DataSourceID, &sev, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Severity = Severity(sev)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
