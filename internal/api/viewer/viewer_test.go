package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

func newViewer(t *testing.T) (*http.ServeMux, *session.Session) {
	t.Helper()
	sess, err := session.New(session.Config{
		Catalog:  catalog.Default(),
		Geometry: overlay.Default(),
		Fetcher:  scores.NewMockFetcher(),
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	events := sess.Bus().Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sess.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	timeout := time.After(2 * time.Second)
wait:
	for {
		select {
		case e := <-events:
			if e.Kind == service.EventScores {
				break wait
			}
		case <-timeout:
			t.Fatal("timed out waiting for scores")
		}
	}
	sess.Bus().Unsubscribe(events)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	h := NewHandler(sess, templates.Must(), logger.Discard())
	h.RegisterRoutes(api)
	mux.HandleFunc("/viewer", h.Page)
	return mux, sess
}

func post(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStreamSendsInitialView(t *testing.T) {
	mux, _ := newViewer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/viewer/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, `id="layer-list"`)
	assert.Contains(t, body, `id="legend"`)
	assert.Contains(t, body, `id="zip-80331"`)
	assert.Contains(t, body, "#374151")
}

func TestSelectDataSourceAction(t *testing.T) {
	mux, sess := newViewer(t)

	rec := post(mux, "/api/v1/viewer/data-source", `{"datasource":"price"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "datastar-patch-signals")

	snap, err := sess.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "price", snap.Selection.DataSourceID)

	rec = post(mux, "/api/v1/viewer/data-source", `{"datasource":"links"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown data-source layer")

	rec = post(mux, "/api/v1/viewer/data-source", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(mux, "/api/v1/viewer/data-source", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectGroupMemberAction(t *testing.T) {
	mux, sess := newViewer(t)

	rec := post(mux, "/api/v1/viewer/group-member", `{"groupmember":"links"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "antifa")

	snap, err := sess.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"links"}, snap.Selection.MemberIDs)
}

func TestSearchAction(t *testing.T) {
	mux, sess := newViewer(t)

	rec := post(mux, "/api/v1/viewer/search", `{"query":"80331"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resolved")

	snap, err := sess.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "80331", snap.Highlight.HighlightedRegionID)

	rec = post(mux, "/api/v1/viewer/search", `{"query":"99999"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not-found")
}

func TestPage(t *testing.T) {
	mux, _ := newViewer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/viewer", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, `id="layer-list"`)
	assert.Contains(t, body, "/api/v1/viewer/stream")
}

func TestPartsFor(t *testing.T) {
	assert.True(t, partsFor(service.EventSelection).legend)
	assert.True(t, partsFor(service.EventScores).overlay)
	assert.True(t, partsFor(service.EventHighlight).region)
	assert.False(t, partsFor(service.EventWindow).overlay)
	assert.Equal(t, parts{}, partsFor(service.EventStale))
}
