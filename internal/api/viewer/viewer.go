// Package viewer contains the Datastar SSE handlers behind the /viewer page.
//
// The stream endpoint pushes the layer list, legend, status line, region
// detail and SVG overlay, and re-patches them whenever the session publishes
// an event. Actions post Datastar signals and answer with signal patches; the
// visual update arrives over the stream.
package viewer

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/search"
	"github.com/joeblew999/plat-overlay/internal/selection"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Handler serves the viewer stream, actions and page.
type Handler struct {
	humastar.Handler
	sess   *session.Session
	logger *slog.Logger
}

func NewHandler(sess *session.Session, renderer *templates.Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		sess:    sess,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/stream", h.Stream, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/search", h.Search, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/data-source", h.SelectDataSource, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/group-member", h.SelectGroupMember, huma.OperationTags("viewer"))
}

// Template data

type groupData struct {
	Key     string
	Members []humastar.SelectOptionData
}

type layerListData struct {
	DataSources []humastar.SelectOptionData
	Groups      []groupData
	GroupName   string
}

type statusData struct {
	Selection selection.Selection
	Window    scores.Window
	Loading   bool
	ScoresFor string
	Error     string
	Search    string
	UpdatedAt time.Time
}

type pageData struct {
	Title        string
	DataSourceID string
	Layers       layerListData
	Legend       session.LegendView
	Region       session.RegionDetail
	SVG          template.HTML
}

func (h *Handler) layerList(snap session.Snapshot) layerListData {
	cat := h.sess.Catalog()
	data := layerListData{GroupName: "group"}
	for _, d := range snap.Selectable {
		data.DataSources = append(data.DataSources, option(d, d.ID == snap.Selection.DataSourceID))
	}
	for _, key := range cat.Groups() {
		g := groupData{Key: key}
		for _, m := range cat.ListGroupMembers(key) {
			active := len(snap.Selection.MemberIDs) > 0 && snap.Selection.MemberIDs[0] == m.ID
			g.Members = append(g.Members, option(m, active))
		}
		data.Groups = append(data.Groups, g)
	}
	return data
}

func option(d catalog.Definition, selected bool) humastar.SelectOptionData {
	label := d.Label
	if label == "" {
		label = d.ID
	}
	return humastar.SelectOptionData{Value: d.ID, Label: label, Selected: selected}
}

func statusOf(snap session.Snapshot) statusData {
	st := statusData{
		Selection: snap.Selection,
		Window:    snap.Window,
		Loading:   snap.Loading,
		ScoresFor: snap.ScoresFor,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Error != nil {
		st.Error = snap.Error.Err.Error()
	}
	switch snap.Highlight.Status {
	case search.StatusNotFound:
		st.Search = fmt.Sprintf("No region matches %q", snap.Highlight.Query)
	case search.StatusResolved:
		st.Search = "Showing " + snap.Highlight.HighlightedRegionID
	}
	return st
}

func (h *Handler) region(ctx context.Context, snap session.Snapshot) session.RegionDetail {
	id := snap.Highlight.HighlightedRegionID
	if id == "" {
		return session.RegionDetail{}
	}
	d, err := h.sess.Region(ctx, id)
	if err != nil {
		return session.RegionDetail{}
	}
	return d
}

func (h *Handler) svg(ctx context.Context) (template.HTML, error) {
	doc, err := h.sess.Overlay(ctx)
	if err != nil {
		return "", err
	}
	return template.HTML(overlay.EncodeSVG(h.sess.Geometry(), doc, overlay.DefaultSVGOptions())), nil
}

// parts selects which fragments a patch re-renders.
type parts struct {
	layers, legend, status, region, overlay bool
}

var allParts = parts{true, true, true, true, true}

func partsFor(kind string) parts {
	switch kind {
	case service.EventSelection:
		return parts{layers: true, legend: true, status: true}
	case service.EventWindow, service.EventFetchError:
		return parts{status: true}
	case service.EventScores, service.EventHighlight:
		return parts{status: true, region: true, overlay: true}
	}
	return parts{}
}

func (h *Handler) patch(ctx context.Context, sse humastar.SSE, p parts) error {
	snap, err := h.sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	if p.layers {
		sse.Replace(h.Fragment("layer-list", h.layerList(snap)), "#layer-list")
	}
	if p.legend {
		lv, err := h.sess.Legend(ctx)
		if err != nil {
			return err
		}
		sse.Replace(h.Fragment("legend", lv), "#legend")
	}
	if p.status {
		sse.Replace(h.Fragment("status", statusOf(snap)), "#status")
	}
	if p.region {
		sse.Replace(h.Fragment("region-detail", h.region(ctx, snap)), "#region-detail")
	}
	if p.overlay {
		svg, err := h.svg(ctx)
		if err != nil {
			return err
		}
		sse.Patch(string(svg), "#overlay")
	}
	return nil
}

// Stream pushes the full view once, then patches on session events until the
// client disconnects.
func (h *Handler) Stream(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		events := h.sess.Bus().Subscribe()
		defer h.sess.Bus().Unsubscribe(events)
		metrics.SurfaceClients.Inc()
		defer metrics.SurfaceClients.Dec()

		if err := h.patch(ctx, sse, allParts); err != nil {
			sse.Error(err.Error())
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p := partsFor(ev.Kind)
				if p == (parts{}) {
					continue
				}
				if err := h.patch(ctx, sse, p); err != nil {
					h.logger.Debug("viewer stream ended", "error", err)
					return
				}
			}
		}
	}), nil
}

// Search resolves the "query" signal.
func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	query := signals.String("query")

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		st, err := h.sess.Search(ctx, query)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{"searchStatus": string(st.Status), "highlighted": st.HighlightedRegionID})
		if st.Status == search.StatusNotFound {
			sse.Error(fmt.Sprintf("No region matches %q", query))
		}
	}), nil
}

// SelectDataSource activates the "datasource" signal.
func (h *Handler) SelectDataSource(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.selectLayer(input, "datasource", h.sess.SelectDataSource)
}

// SelectGroupMember activates the "groupmember" signal.
func (h *Handler) SelectGroupMember(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	return h.selectLayer(input, "groupmember", h.sess.SelectGroupMember)
}

func (h *Handler) selectLayer(input *humastar.SignalsInput, signal string, apply func(context.Context, string) error) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String(signal)
	if id == "" {
		return nil, huma.Error400BadRequest(signal + " is required")
	}

	return h.Handler.Stream(func(ctx context.Context, sse humastar.SSE) {
		if err := apply(ctx, id); err != nil {
			sse.Error(err.Error())
			return
		}
		snap, err := h.sess.Snapshot(ctx)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{
			"datasource": snap.Selection.DataSourceID,
			"error":      "",
		})
	}), nil
}

// Page serves the viewer HTML with the current state inlined.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.sess.Snapshot(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	lv, err := h.sess.Legend(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	svg, err := h.svg(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	html, err := h.Renderer.Render("viewer", pageData{
		Title:        "plat-overlay viewer",
		DataSourceID: snap.Selection.DataSourceID,
		Layers:       h.layerList(snap),
		Legend:       lv,
		Region:       h.region(ctx, snap),
		SVG:          svg,
	})
	if err != nil {
		h.logger.Error("rendering viewer", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
