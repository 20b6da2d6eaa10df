// Package session owns one viewer's overlay state: the layer selection, time
// window, region scores, highlight and the rendered overlay.
//
// All state is mutated on a single event-loop goroutine started by Run.
// Public methods submit closures to that loop and wait for them. Score fetches
// run on their own goroutines and post their results back to the loop, where
// only the result carrying the most recently issued token is applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/colorscale"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/search"
	"github.com/joeblew999/plat-overlay/internal/selection"
	"github.com/joeblew999/plat-overlay/internal/service"
)

var (
	// ErrClosed is returned once Run has returned.
	ErrClosed = errors.New("session closed")
	// ErrUnknownRegion is returned for region ids missing from the base
	// geometry. It is the same value as service.ErrUnknownRegion.
	ErrUnknownRegion = service.ErrUnknownRegion
)

// Config wires a Session to its collaborators.
type Config struct {
	Catalog      *catalog.Catalog
	Geometry     *overlay.Geometry
	Fetcher      scores.Fetcher
	Window       scores.Window
	FetchTimeout time.Duration
	Bus          *service.EventBus
	Logger       *slog.Logger
	Now          func() time.Time
}

// Session coordinates selection, fetching, search and rendering.
type Session struct {
	cat      *catalog.Catalog
	geom     *overlay.Geometry
	fetcher  scores.Fetcher
	timeout  time.Duration
	bus      *service.EventBus
	logger   *slog.Logger
	now      func() time.Time
	renderer *overlay.Renderer

	cmds    chan func()
	stopped chan struct{}

	// loop-owned
	loopCtx     context.Context
	sel         *selection.State
	window      scores.Window
	store       *scores.Store
	seq         scores.Sequencer
	hl          *search.Highlighter
	doc         *overlay.Document
	cancelFetch context.CancelFunc
	loading     bool
	applied     scores.FetchRequest
	appliedTok  uint64
	fetchErr    *scores.FetchError
}

// New validates cfg and builds a Session. A catalog without data sources is a
// *catalog.ConfigurationError.
func New(cfg Config) (*Session, error) {
	if cfg.Catalog == nil {
		return nil, &catalog.ConfigurationError{Reason: "no catalog"}
	}
	if cfg.Geometry == nil {
		return nil, errors.New("session: no base geometry")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("session: no score fetcher")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = service.NewEventBus()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Window.Range == "" {
		cfg.Window = scores.DefaultWindow()
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}

	sel, err := selection.New(cfg.Catalog, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cat:      cfg.Catalog,
		geom:     cfg.Geometry,
		fetcher:  cfg.Fetcher,
		timeout:  cfg.FetchTimeout,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		now:      cfg.Now,
		renderer: overlay.NewRenderer(cfg.Logger),
		cmds:     make(chan func(), 64),
		stopped:  make(chan struct{}),
		sel:      sel,
		window:   cfg.Window,
		store:    scores.NewStore(),
		hl:       search.NewHighlighter(),
	}
	s.doc = s.renderer.Render(s.geom, s.store, s.hl.State())

	sel.OnChange(s.selectionChanged)
	s.hl.OnChange(s.highlightChanged)
	return s, nil
}

// Run processes commands until ctx is done. The first fetch is issued
// immediately.
func (s *Session) Run(ctx context.Context) error {
	s.loopCtx = ctx
	defer close(s.stopped)
	defer func() {
		if s.cancelFetch != nil {
			s.cancelFetch()
		}
	}()

	s.startFetch("start")
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.cmds:
			fn()
		}
	}
}

// Bus returns the event bus the session publishes to.
func (s *Session) Bus() *service.EventBus { return s.bus }

// Catalog is immutable and safe to read from any goroutine.
func (s *Session) Catalog() *catalog.Catalog { return s.cat }

// Geometry is immutable and safe to read from any goroutine.
func (s *Session) Geometry() *overlay.Geometry { return s.geom }

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrClosed
	}
}

// post queues fn on the loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.stopped:
	}
}

func (s *Session) selectionChanged(c selection.Change) {
	s.bus.Publish(service.Event{Kind: service.EventSelection, Subject: c.Current.DataSourceID})
	if c.DataSourceChanged() {
		s.startFetch("selection")
	}
}

func (s *Session) highlightChanged(st search.State) {
	s.render()
	s.bus.Publish(service.Event{Kind: service.EventHighlight, Subject: st.HighlightedRegionID})
}

func (s *Session) render() {
	s.doc = s.renderer.Render(s.geom, s.store, s.hl.State())
}

// startFetch supersedes any in-flight fetch and issues a new one.
func (s *Session) startFetch(reason string) uint64 {
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	token := s.seq.Next()
	req := scores.NewRequest(s.sel.DataSourceID(), s.window, s.now())

	ctx, cancel := context.WithTimeout(s.loopCtx, s.timeout)
	s.cancelFetch = cancel
	s.loading = true

	s.logger.Debug("fetching scores", "reason", reason, "token", token, "source", req.DataSourceID, "range", req.Window.Range, "interval", req.Window.Interval)
	go func() {
		defer cancel()
		start := time.Now()
		res, err := s.fetcher.Fetch(ctx, req)
		metrics.FetchDurationMs.WithLabelValues(req.DataSourceID).Observe(float64(time.Since(start).Milliseconds()))
		s.post(func() { s.applyFetch(token, req, res, err) })
	}()
	return token
}

func (s *Session) applyFetch(token uint64, req scores.FetchRequest, res []scores.RegionScore, err error) {
	if !s.seq.Current(token) {
		metrics.FetchesTotal.WithLabelValues(req.DataSourceID, "stale").Inc()
		s.logger.Debug("dropping stale scores", "token", token, "current", s.seq.Last(), "source", req.DataSourceID)
		s.bus.Publish(service.Event{Kind: service.EventStale, Subject: req.DataSourceID, Token: token})
		return
	}
	s.loading = false

	if err != nil {
		s.fetchErr = &scores.FetchError{DataSourceID: req.DataSourceID, Token: token, Err: err}
		metrics.FetchesTotal.WithLabelValues(req.DataSourceID, "error").Inc()
		s.logger.Warn("score fetch failed, keeping last scores", "token", token, "source", req.DataSourceID, "error", err)
		s.bus.Publish(service.Event{Kind: service.EventFetchError, Subject: req.DataSourceID, Token: token})
		return
	}

	s.store.Set(res)
	s.applied = req
	s.appliedTok = token
	s.fetchErr = nil
	s.render()
	metrics.FetchesTotal.WithLabelValues(req.DataSourceID, "ok").Inc()
	s.logger.Info("scores updated", "token", token, "source", req.DataSourceID, "regions", len(res))
	s.bus.Publish(service.Event{Kind: service.EventScores, Subject: req.DataSourceID, Token: token})
}

// SelectDataSource activates a data source. Unknown ids return
// *selection.UnknownLayerError and leave the state unchanged.
func (s *Session) SelectDataSource(ctx context.Context, id string) error {
	var err error
	if derr := s.do(ctx, func() { err = s.sel.SelectDataSource(id) }); derr != nil {
		return derr
	}
	if err != nil {
		metrics.SelectionRejectedTotal.WithLabelValues(string(catalog.KindDataSource)).Inc()
	}
	return err
}

// SelectGroupMember activates a layer-group member, switching to its coupled
// data source when there is one.
func (s *Session) SelectGroupMember(ctx context.Context, id string) error {
	var err error
	if derr := s.do(ctx, func() { err = s.sel.SelectGroupMember(id) }); derr != nil {
		return derr
	}
	if err != nil {
		metrics.SelectionRejectedTotal.WithLabelValues(string(catalog.KindGroupMember)).Inc()
	}
	return err
}

// SelectableDataSources lists the data sources offered for the active source type.
func (s *Session) SelectableDataSources(ctx context.Context) ([]catalog.Definition, error) {
	var out []catalog.Definition
	err := s.do(ctx, func() { out = s.sel.SelectableDataSources() })
	return out, err
}

// SetWindow changes the time window and refetches. An empty interval picks
// the range's first allowed interval.
func (s *Session) SetWindow(ctx context.Context, w scores.Window) (scores.Window, error) {
	if w.Interval == "" {
		ivs := scores.AllowedIntervals(w.Range)
		if len(ivs) > 0 {
			w.Interval = ivs[0]
		}
	}
	if err := w.Validate(); err != nil {
		return scores.Window{}, err
	}
	err := s.do(ctx, func() {
		if w == s.window {
			return
		}
		s.window = w
		s.bus.Publish(service.Event{Kind: service.EventWindow, Subject: string(w.Range)})
		s.startFetch("window")
	})
	return w, err
}

// Refresh refetches the current selection and window, returning the token.
func (s *Session) Refresh(ctx context.Context) (uint64, error) {
	var token uint64
	err := s.do(ctx, func() { token = s.startFetch("refresh") })
	return token, err
}

// Search resolves query against the current region scores and highlights the
// match. A miss is reported in the returned state, not as an error.
func (s *Session) Search(ctx context.Context, query string) (search.State, error) {
	var st search.State
	err := s.do(ctx, func() { st = s.hl.Submit(query, s.store) })
	if err == nil {
		metrics.SearchesTotal.WithLabelValues(string(st.Status)).Inc()
	}
	return st, err
}

// ClearHighlight returns search to Idle.
func (s *Session) ClearHighlight(ctx context.Context) (search.State, error) {
	var st search.State
	err := s.do(ctx, func() { st = s.hl.Clear() })
	return st, err
}

// RegionDetail is what a display surface shows for a clicked or hovered region.
type RegionDetail struct {
	RegionID     string           `json:"regionId" doc:"Region key" example:"80331"`
	Name         string           `json:"name,omitempty" doc:"Region name" example:"Altstadt"`
	Score        *float64         `json:"score" doc:"Current score; null means no data"`
	Color        colorscale.Token `json:"colorToken" doc:"Resolved fill color"`
	Highlighted  bool             `json:"isHighlighted" doc:"Whether the region is highlighted"`
	DataSourceID string           `json:"dataSourceId" doc:"Data source the score belongs to"`
}

func (s *Session) detail(id string) (RegionDetail, error) {
	reg, ok := s.doc.Region(id)
	if !ok {
		return RegionDetail{}, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	return RegionDetail{
		RegionID:     reg.RegionID,
		Name:         reg.Name,
		Score:        reg.Score,
		Color:        reg.Color,
		Highlighted:  reg.Highlighted,
		DataSourceID: s.applied.DataSourceID,
	}, nil
}

// Click highlights a region and returns its detail.
func (s *Session) Click(ctx context.Context, regionID string) (RegionDetail, error) {
	var (
		d   RegionDetail
		err error
	)
	if derr := s.do(ctx, func() {
		if !s.geom.Has(regionID) {
			err = fmt.Errorf("%w: %q", ErrUnknownRegion, regionID)
			return
		}
		s.hl.SetHighlight(regionID)
		d, err = s.detail(regionID)
	}); derr != nil {
		return RegionDetail{}, derr
	}
	return d, err
}

// Hover returns a region's detail without changing any state.
func (s *Session) Hover(ctx context.Context, regionID string) (RegionDetail, error) {
	return s.Region(ctx, regionID)
}

// Region returns a region's detail.
func (s *Session) Region(ctx context.Context, regionID string) (RegionDetail, error) {
	var (
		d   RegionDetail
		err error
	)
	if derr := s.do(ctx, func() { d, err = s.detail(regionID) }); derr != nil {
		return RegionDetail{}, derr
	}
	return d, err
}

// Overlay returns the current rendered document. Documents are never mutated
// after they are returned.
func (s *Session) Overlay(ctx context.Context) (*overlay.Document, error) {
	var doc *overlay.Document
	err := s.do(ctx, func() { doc = s.doc })
	return doc, err
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Selection selection.Selection
	Window    scores.Window
	Highlight search.State
	Loading   bool
	// Token of the fetch whose scores are displayed; 0 before the first.
	Token      uint64
	ScoresFor  string
	Regions    int
	UpdatedAt  time.Time
	Error      *scores.FetchError
	Selectable []catalog.Definition
}

// Snapshot copies the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{
			Selection:  s.sel.Snapshot(),
			Window:     s.window,
			Highlight:  s.hl.State(),
			Loading:    s.loading,
			Token:      s.appliedTok,
			ScoresFor:  s.applied.DataSourceID,
			Regions:    s.store.Len(),
			UpdatedAt:  s.store.UpdatedAt(),
			Error:      s.fetchErr,
			Selectable: s.sel.SelectableDataSources(),
		}
	})
	return snap, err
}

// WaitReady blocks until the first fetch has settled, with scores or with an
// error.
func (s *Session) WaitReady(ctx context.Context) (Snapshot, error) {
	events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(events)
	for {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return snap, err
		}
		if snap.Token > 0 || snap.Error != nil {
			return snap, nil
		}
		select {
		case <-events:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Scores returns the displayed region scores sorted by region id.
func (s *Session) Scores(ctx context.Context) ([]scores.RegionScore, error) {
	var out []scores.RegionScore
	err := s.do(ctx, func() { out = s.store.All() })
	return out, err
}

// LegendView is the active data source's legend.
type LegendView struct {
	DataSourceID string                   `json:"dataSourceId" doc:"Data source the legend describes"`
	Title        string                   `json:"title" doc:"Legend title"`
	Unit         string                   `json:"unit" doc:"Unit label"`
	ColorTheme   string                   `json:"colorTheme" doc:"Color theme"`
	Entries      []colorscale.LegendEntry `json:"entries" doc:"One entry per palette step"`
	NoData       colorscale.Token         `json:"noData" doc:"Color used for regions without data"`
}

// Legend returns the legend of the active data source.
func (s *Session) Legend(ctx context.Context) (LegendView, error) {
	var lv LegendView
	err := s.do(ctx, func() {
		d := s.sel.ActiveDataSource()
		lv = LegendView{
			DataSourceID: d.ID,
			Title:        d.Legend.Title,
			Unit:         d.Legend.Unit,
			ColorTheme:   d.Legend.ColorTheme,
			Entries:      colorscale.Legend(d.Legend.Breakpoints),
			NoData:       colorscale.NoData,
		}
		if lv.Title == "" {
			lv.Title = d.Label
		}
	})
	return lv, err
}
