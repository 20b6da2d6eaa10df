package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-overlay/internal/tiler"
)

// TileService writes and lists overlay PMTiles archives under <dataDir>/tiles.
type TileService struct {
	tilesDir string
	tiler    tiler.Tiler
}

func NewTileService(dataDir string, t tiler.Tiler) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		tiler:    t,
	}
}

// List returns all available PMTiles files.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, tileFile(entry.Name(), info.Size()))
	}
	return files, nil
}

// Export tiles fc into <name>.pmtiles, replacing any previous archive
// atomically.
func (s *TileService) Export(ctx context.Context, name string, fc *geojson.FeatureCollection, cfg tiler.TileConfig) (TileFile, error) {
	name = strings.TrimSuffix(name, ".pmtiles")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return TileFile{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(s.tilesDir, 0755); err != nil {
		return TileFile{}, fmt.Errorf("failed to create tiles directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.tilesDir, name+".*.tmp")
	if err != nil {
		return TileFile{}, err
	}
	defer os.Remove(tmp.Name())

	if err := s.tiler.Tile(ctx, fc, tmp, cfg); err != nil {
		tmp.Close()
		return TileFile{}, fmt.Errorf("tiling with %s: %w", s.tiler.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return TileFile{}, err
	}

	final := name + ".pmtiles"
	if err := os.Rename(tmp.Name(), filepath.Join(s.tilesDir, final)); err != nil {
		return TileFile{}, err
	}
	info, err := os.Stat(filepath.Join(s.tilesDir, final))
	if err != nil {
		return TileFile{}, err
	}
	return tileFile(final, info.Size()), nil
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

func tileFile(name string, size int64) TileFile {
	return TileFile{Name: name, Size: formatSize(size), URL: "/tiles/" + name}
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
