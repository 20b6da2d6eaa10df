// Package service contains the persistence and file-backed services behind
// the overlay engine: region reports, score sources, tile archives and the
// event bus that fans session changes out to display surfaces.
package service

import "time"

// Severity of a region report.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ReportInput is a report as submitted from a region drill-in.
type ReportInput struct {
	DataSourceID string   `json:"dataSourceId,omitempty" doc:"Data source the report refers to; defaults to the active one" example:"price"`
	Severity     Severity `json:"severity" required:"true" enum:"low,medium,high" doc:"Report severity" example:"medium"`
	Details      string   `json:"details" required:"true" minLength:"1" maxLength:"2000" doc:"Free-text details"`
}

// Report is a stored region report.
type Report struct {
	ID           string    `json:"id" doc:"Report identifier (UUID)"`
	RegionID     string    `json:"regionId" doc:"Reported region" example:"80331"`
	DataSourceID string    `json:"dataSourceId" doc:"Data source active when reported" example:"price"`
	Severity     Severity  `json:"severity" enum:"low,medium,high" doc:"Report severity"`
	Details      string    `json:"details" doc:"Free-text details"`
	CreatedAt    time.Time `json:"createdAt" doc:"Submission time"`
}

// SourceFile is a score observation file waiting to be ingested.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"scores.csv"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type" example:"CSV"`
}

// TileFile is an exported PMTiles archive.
type TileFile struct {
	Name string `json:"name" doc:"PMTiles file name" example:"overlay-price.pmtiles"`
	Size string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	URL  string `json:"url" doc:"Where the archive is served" example:"/tiles/overlay-price.pmtiles"`
}
