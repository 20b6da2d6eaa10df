// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/search"
	"github.com/joeblew999/plat-overlay/internal/selection"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Session *session.Session
	Reports *service.ReportService
	Sources *service.SourceService
	Tiles   *service.TileService
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"price"`
}

type IDBody struct {
	ID string `json:"id" minLength:"1" doc:"Layer ID" example:"price"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// LayerBody is a catalog definition with its select action.
type LayerBody catalog.Definition

func (l LayerBody) Actions() []humastar.Action {
	rel, path := "select", "/api/v1/selection/data-source"
	if l.Kind == catalog.KindGroupMember {
		path = "/api/v1/selection/group-member"
	}
	return humastar.ActionsFor(l.ID, []humastar.ActionDef{
		{Rel: rel, Pattern: path, Method: "PUT", Title: "Show %s"},
	})
}

type LayersInput struct {
	Kind string `query:"kind" enum:"data-source,group-member" doc:"Only list definitions of this kind"`
}

type SelectionBody struct {
	Selection  selection.Selection `json:"selection" doc:"Active selection"`
	Selectable []string            `json:"selectableDataSources" doc:"Data sources offered for the active source type"`
}

type RangeOption struct {
	Range     scores.Range      `json:"range" doc:"Timeline range"`
	Intervals []scores.Interval `json:"intervals" doc:"Allowed intervals, first is the default"`
}

type WindowBody struct {
	Window scores.Window `json:"window" doc:"Active time window"`
	Ranges []RangeOption `json:"ranges" doc:"Available ranges"`
}

type WindowInput struct {
	Body struct {
		Range    scores.Range    `json:"range" enum:"live,24h,30d,12m,all" doc:"Timeline range" example:"30d"`
		Interval scores.Interval `json:"interval,omitempty" required:"false" enum:"15m,1h,1d,1mo,1y" doc:"Aggregation interval; defaults to the range's first"`
		AsOf     time.Time       `json:"asOf,omitzero" required:"false" doc:"Scrub position; omitted means now"`
	}
}

type RefreshBody struct {
	Token uint64 `json:"token" doc:"Fetch token issued for the refresh"`
}

type ScoresBody struct {
	DataSourceID string               `json:"dataSourceId" doc:"Data source the scores belong to"`
	Scores       []scores.RegionScore `json:"scores" doc:"Region scores sorted by region id"`
	UpdatedAt    time.Time            `json:"updatedAt,omitzero" doc:"When the scores were applied"`
}

type StatusBody struct {
	Loading   bool      `json:"loading" doc:"A fetch is in flight"`
	Token     uint64    `json:"token" doc:"Token of the displayed scores"`
	ScoresFor string    `json:"scoresFor" doc:"Data source of the displayed scores"`
	Regions   int       `json:"regions" doc:"Number of scored regions"`
	UpdatedAt time.Time `json:"updatedAt,omitzero" doc:"When the scores were applied"`
	Error     string    `json:"error,omitempty" doc:"Last fetch failure; the previous scores stay displayed"`
	Timeout   bool      `json:"timeout,omitempty" doc:"The last fetch timed out"`
}

type SearchInput struct {
	Body struct {
		Query string `json:"query" maxLength:"64" doc:"Region id to find" example:"80331"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc == nil {
		svc = &Services{}
	}
	return &APIHandler{svc: svc}
}

func (h *APIHandler) session() (*session.Session, error) {
	if h.svc.Session == nil {
		return nil, huma.Error503ServiceUnavailable("session not available")
	}
	return h.svc.Session, nil
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers read-only catalog routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
}

// RegisterSelection registers selection routes.
func (h *APIHandler) RegisterSelection(api huma.API) {
	huma.Get(api, "/api/v1/selection", h.GetSelection, huma.OperationTags("selection"))
	huma.Put(api, "/api/v1/selection/data-source", h.PutDataSource, huma.OperationTags("selection"))
	huma.Put(api, "/api/v1/selection/group-member", h.PutGroupMember, huma.OperationTags("selection"))
}

// RegisterScores registers time window and score routes.
func (h *APIHandler) RegisterScores(api huma.API) {
	huma.Get(api, "/api/v1/window", h.GetWindow, huma.OperationTags("scores"))
	huma.Put(api, "/api/v1/window", h.PutWindow, huma.OperationTags("scores"))
	huma.Get(api, "/api/v1/scores", h.GetScores, huma.OperationTags("scores"))
	huma.Post(api, "/api/v1/scores/refresh", h.PostRefresh, huma.OperationTags("scores"), func(o *huma.Operation) {
		o.DefaultStatus = 202
	})
	huma.Get(api, "/api/v1/status", h.GetStatus, huma.OperationTags("scores"))
	huma.Get(api, "/api/v1/legend", h.GetLegend, huma.OperationTags("scores"))
}

// RegisterSearch registers search and highlight routes.
func (h *APIHandler) RegisterSearch(api huma.API) {
	huma.Post(api, "/api/v1/search", h.PostSearch, huma.OperationTags("search"))
	huma.Delete(api, "/api/v1/highlight", h.DeleteHighlight, huma.OperationTags("search"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *LayersInput) (*struct{ Body []LayerBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	defs := sess.Catalog().All()
	if input.Kind != "" {
		defs = sess.Catalog().ListByKind(catalog.Kind(input.Kind))
	}
	out := make([]LayerBody, len(defs))
	for i, d := range defs {
		out[i] = LayerBody(d)
	}
	return &struct{ Body []LayerBody }{Body: out}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*struct{ Body LayerBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	d, ok := sess.Catalog().FindByID(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &struct{ Body LayerBody }{Body: LayerBody(d)}, nil
}

func (h *APIHandler) GetSelection(ctx context.Context, input *struct{}) (*struct{ Body SelectionBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body SelectionBody }{Body: selectionBody(snap)}, nil
}

func (h *APIHandler) PutDataSource(ctx context.Context, input *struct{ Body IDBody }) (*struct{ Body SelectionBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	if err := sess.SelectDataSource(ctx, input.Body.ID); err != nil {
		return nil, toHTTP(err)
	}
	return h.GetSelection(ctx, nil)
}

func (h *APIHandler) PutGroupMember(ctx context.Context, input *struct{ Body IDBody }) (*struct{ Body SelectionBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	if err := sess.SelectGroupMember(ctx, input.Body.ID); err != nil {
		return nil, toHTTP(err)
	}
	return h.GetSelection(ctx, nil)
}

func selectionBody(snap session.Snapshot) SelectionBody {
	ids := make([]string, len(snap.Selectable))
	for i, d := range snap.Selectable {
		ids[i] = d.ID
	}
	return SelectionBody{Selection: snap.Selection, Selectable: ids}
}

func (h *APIHandler) GetWindow(ctx context.Context, input *struct{}) (*struct{ Body WindowBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body WindowBody }{Body: windowBody(snap.Window)}, nil
}

func (h *APIHandler) PutWindow(ctx context.Context, input *WindowInput) (*struct{ Body WindowBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	w, err := sess.SetWindow(ctx, scores.Window{
		Range:    input.Body.Range,
		Interval: input.Body.Interval,
		AsOf:     input.Body.AsOf,
	})
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body WindowBody }{Body: windowBody(w)}, nil
}

func windowBody(w scores.Window) WindowBody {
	body := WindowBody{Window: w}
	for _, r := range scores.Ranges() {
		body.Ranges = append(body.Ranges, RangeOption{Range: r, Intervals: scores.AllowedIntervals(r)})
	}
	return body
}

func (h *APIHandler) GetScores(ctx context.Context, input *struct{}) (*struct{ Body ScoresBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	all, err := sess.Scores(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body ScoresBody }{Body: ScoresBody{
		DataSourceID: snap.ScoresFor,
		Scores:       all,
		UpdatedAt:    snap.UpdatedAt,
	}}, nil
}

func (h *APIHandler) PostRefresh(ctx context.Context, input *struct{}) (*struct{ Body RefreshBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	token, err := sess.Refresh(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body RefreshBody }{Body: RefreshBody{Token: token}}, nil
}

func (h *APIHandler) GetStatus(ctx context.Context, input *struct{}) (*struct{ Body StatusBody }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	body := StatusBody{
		Loading:   snap.Loading,
		Token:     snap.Token,
		ScoresFor: snap.ScoresFor,
		Regions:   snap.Regions,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.Error != nil {
		body.Error = snap.Error.Error()
		body.Timeout = snap.Error.Timeout()
	}
	return &struct{ Body StatusBody }{Body: body}, nil
}

func (h *APIHandler) GetLegend(ctx context.Context, input *struct{}) (*struct{ Body session.LegendView }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	lv, err := sess.Legend(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body session.LegendView }{Body: lv}, nil
}

func (h *APIHandler) PostSearch(ctx context.Context, input *SearchInput) (*struct{ Body search.State }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	st, err := sess.Search(ctx, input.Body.Query)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body search.State }{Body: st}, nil
}

func (h *APIHandler) DeleteHighlight(ctx context.Context, input *struct{}) (*struct{ Body search.State }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	st, err := sess.ClearHighlight(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body search.State }{Body: st}, nil
}
