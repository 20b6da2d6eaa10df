package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/tiler"
	"github.com/joeblew999/plat-overlay/internal/tiler/gotiler"
)

func TestEventBus(t *testing.T) {
	b := NewEventBus()
	ch := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	b.Publish(Event{Kind: EventScores, Subject: "price", Token: 3})
	select {
	case e := <-ch:
		assert.Equal(t, EventScores, e.Kind)
		assert.Equal(t, uint64(3), e.Token)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	// a full buffer drops instead of blocking
	for i := 0; i < 100; i++ {
		b.Publish(Event{Kind: EventHighlight})
	}

	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	assert.Zero(t, b.Subscribers())
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}

func TestReportService(t *testing.T) {
	conn := openDB(t)
	known := map[string]bool{"80331": true}
	svc := NewReportService(conn, func(id string) bool { return known[id] })
	ctx := context.Background()

	r, err := svc.Submit(ctx, "80331", ReportInput{DataSourceID: "price", Severity: SeverityHigh, Details: "  posters everywhere "})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "posters everywhere", r.Details)

	_, err = svc.Submit(ctx, "99999", ReportInput{Severity: SeverityLow, Details: "x"})
	assert.True(t, errors.Is(err, ErrUnknownRegion))
	_, err = svc.Submit(ctx, "80331", ReportInput{Severity: "urgent", Details: "x"})
	assert.True(t, errors.Is(err, ErrInvalidSeverity))
	_, err = svc.Submit(ctx, "80331", ReportInput{Severity: SeverityLow, Details: "   "})
	assert.True(t, errors.Is(err, ErrEmptyDetails))

	list, err := svc.List(ctx, "80331")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
	assert.Equal(t, SeverityHigh, list[0].Severity)
	assert.True(t, r.CreatedAt.Equal(list[0].CreatedAt))

	empty, err := svc.List(ctx, "80469")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSourceServiceIngest(t *testing.T) {
	conn := openDB(t)
	dir := t.TempDir()
	store := scores.NewDuckDBFetcher(conn)
	svc := NewSourceService(dir, store)

	files, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, os.MkdirAll(svc.SourcesDir(), 0755))
	csv := "source_id,region_id,observed_at,value\nprice,80331,2026-03-15T09:00:00Z,30\nprice,80469,2026-03-15T09:00:00Z,\n"
	require.NoError(t, os.WriteFile(filepath.Join(svc.SourcesDir(), "march.csv"), []byte(csv), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(svc.SourcesDir(), "notes.txt"), []byte("x"), 0644))

	files, err = svc.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "march.csv", files[0].Name)

	n, err := svc.Ingest(context.Background(), "march.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.Ingest(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	got, err := store.Fetch(context.Background(), scores.NewRequest("price", scores.Window{Range: scores.Range24h, Interval: scores.Interval1h}, now))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 30.0, *got[0].Value)
	assert.Nil(t, got[1].Value)
}

func TestTileServiceExport(t *testing.T) {
	svc := NewTileService(t.TempDir(), gotiler.New())

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{{{11.565, 48.132}, {11.58, 48.132}, {11.58, 48.142}, {11.565, 48.142}, {11.565, 48.132}}})
	f.Properties["regionId"] = "80331"
	fc.Append(f)

	tf, err := svc.Export(context.Background(), "overlay-price", fc, tiler.TileConfig{MinZoom: 10, MaxZoom: 11})
	require.NoError(t, err)
	assert.Equal(t, "overlay-price.pmtiles", tf.Name)
	assert.Equal(t, "/tiles/overlay-price.pmtiles", tf.URL)

	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = svc.Export(context.Background(), "../evil", fc, tiler.TileConfig{})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
