package scores

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Observation is one raw reading before aggregation.
type Observation struct {
	SourceID   string
	RegionID   string
	ObservedAt time.Time
	Value      *float64
}

// DuckDBFetcher aggregates observations stored in the region_scores table.
// Scores are the average of all readings in the window; a region whose
// readings are all NULL scores nil.
type DuckDBFetcher struct {
	db *sql.DB
}

func NewDuckDBFetcher(db *sql.DB) *DuckDBFetcher {
	return &DuckDBFetcher{db: db}
}

func (f *DuckDBFetcher) Fetch(ctx context.Context, req FetchRequest) ([]RegionScore, error) {
	query := `SELECT region_id, AVG(value) FROM region_scores
		WHERE source_id = ? AND observed_at <= ?`
	args := []any{req.DataSourceID, req.To}
	if !req.From.IsZero() {
		query += ` AND observed_at > ?`
		args = append(args, req.From)
	}
	query += ` GROUP BY region_id ORDER BY region_id`

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query region_scores: %w", err)
	}
	defer rows.Close()

	var out []RegionScore
	for rows.Next() {
		var (
			id  string
			avg sql.NullFloat64
		)
		if err := rows.Scan(&id, &avg); err != nil {
			return nil, fmt.Errorf("scan region_scores: %w", err)
		}
		sc := RegionScore{RegionID: id}
		if avg.Valid {
			sc.Value = Float(avg.Float64)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Ingest inserts observations in one transaction.
func (f *DuckDBFetcher) Ingest(ctx context.Context, obs []Observation) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO region_scores (source_id, region_id, observed_at, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		var v any
		if o.Value != nil {
			v = *o.Value
		}
		if _, err := stmt.ExecContext(ctx, o.SourceID, o.RegionID, o.ObservedAt.UTC(), v); err != nil {
			return fmt.Errorf("insert %s/%s: %w", o.SourceID, o.RegionID, err)
		}
	}
	return tx.Commit()
}

// ParseCSV reads rows of source_id,region_id,observed_at,value. observed_at is
// RFC 3339; an empty value is "no data". A header row starting with
// "source_id" is skipped.
func ParseCSV(r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var out []Observation
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(rec[0], "source_id") {
			continue
		}
		at, err := time.Parse(time.RFC3339, rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: observed_at: %w", line, err)
		}
		o := Observation{SourceID: rec[0], RegionID: rec[1], ObservedAt: at}
		if s := strings.TrimSpace(rec[3]); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: value: %w", line, err)
			}
			o.Value = Float(v)
		}
		out = append(out, o)
	}
}
