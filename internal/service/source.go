package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-overlay/internal/scores"
)

// SourceService manages score observation files under <dataDir>/sources and
// loads them into DuckDB.
type SourceService struct {
	sourcesDir string
	store      *scores.DuckDBFetcher
}

func NewSourceService(dataDir string, store *scores.DuckDBFetcher) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		store:      store,
	}
}

// List returns the CSV files available for ingest.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: "CSV",
		})
	}
	return files, nil
}

// Ingest parses a CSV file (by name under the sources dir, or by path) and
// inserts its observations. It returns the number of rows loaded.
func (s *SourceService) Ingest(ctx context.Context, name string) (int, error) {
	if s.store == nil {
		return 0, ErrNoDatabase
	}
	path := name
	if !filepath.IsAbs(name) {
		if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
			return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		path = filepath.Join(s.sourcesDir, name)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	obs, err := scores.ParseCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if err := s.store.Ingest(ctx, obs); err != nil {
		return 0, err
	}
	return len(obs), nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}
