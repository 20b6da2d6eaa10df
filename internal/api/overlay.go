package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/tiler"
)

// RawOutput is a non-JSON response body.
type RawOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type RegionsBody struct {
	Regions   []overlay.Region `json:"regions" doc:"Visual encoding of every region in the base geometry"`
	Orphans   []string         `json:"orphans" doc:"Scored regions missing from the base geometry"`
	Highlight string           `json:"highlight,omitempty" doc:"Highlighted region"`
}

type ImageInput struct {
	Width  int  `query:"width" default:"800" minimum:"16" maximum:"4096" doc:"Image width in pixels"`
	Height int  `query:"height" default:"600" minimum:"16" maximum:"4096" doc:"Image height in pixels"`
	Legend bool `query:"legend" default:"true" doc:"Append a legend strip (PNG only)"`
}

type ExportInput struct {
	Body struct {
		Name    string `json:"name" minLength:"1" maxLength:"64" pattern:"^[A-Za-z0-9_.-]+$" doc:"Archive name" example:"overlay-price"`
		Layer   string `json:"layer,omitempty" doc:"Layer name inside the tiles" example:"overlay"`
		MinZoom int    `json:"minZoom,omitempty" minimum:"0" maximum:"14" doc:"Minimum zoom level"`
		MaxZoom int    `json:"maxZoom,omitempty" minimum:"0" maximum:"14" doc:"Maximum zoom level; 0 means 14"`
	}
}

// RegisterOverlay registers overlay rendering and tile export routes.
func (h *APIHandler) RegisterOverlay(api huma.API) {
	huma.Get(api, "/api/v1/overlay", h.GetOverlay, huma.OperationTags("overlay"))
	huma.Get(api, "/api/v1/overlay/regions", h.GetOverlayRegions, huma.OperationTags("overlay"))
	huma.Get(api, "/api/v1/overlay/svg", h.GetOverlaySVG, huma.OperationTags("overlay"))
	huma.Get(api, "/api/v1/overlay/png", h.GetOverlayPNG, huma.OperationTags("overlay"))
	huma.Post(api, "/api/v1/overlay/export", h.PostExport, huma.OperationTags("tiles"), func(o *huma.Operation) {
		o.DefaultStatus = 201
	})
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
}

func (h *APIHandler) document(ctx context.Context) (*overlay.Document, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	doc, err := sess.Overlay(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return doc, nil
}

func (h *APIHandler) GetOverlay(ctx context.Context, input *struct{}) (*RawOutput, error) {
	doc, err := h.document(ctx)
	if err != nil {
		return nil, err
	}
	data, err := doc.MarshalGeoJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding overlay", err)
	}
	metrics.RendersTotal.WithLabelValues("geojson").Inc()
	return &RawOutput{ContentType: "application/geo+json", CacheControl: "no-cache", Body: data}, nil
}

func (h *APIHandler) GetOverlayRegions(ctx context.Context, input *struct{}) (*struct{ Body RegionsBody }, error) {
	doc, err := h.document(ctx)
	if err != nil {
		return nil, err
	}
	orphans := doc.Orphans
	if orphans == nil {
		orphans = []string{}
	}
	return &struct{ Body RegionsBody }{Body: RegionsBody{
		Regions:   doc.Regions,
		Orphans:   orphans,
		Highlight: doc.Highlight,
	}}, nil
}

func (h *APIHandler) GetOverlaySVG(ctx context.Context, input *ImageInput) (*RawOutput, error) {
	doc, err := h.document(ctx)
	if err != nil {
		return nil, err
	}
	opts := overlay.DefaultSVGOptions()
	opts.Width, opts.Height = input.Width, input.Height
	data := overlay.EncodeSVG(h.svc.Session.Geometry(), doc, opts)
	metrics.RendersTotal.WithLabelValues("svg").Inc()
	return &RawOutput{ContentType: "image/svg+xml", CacheControl: "no-cache", Body: data}, nil
}

func (h *APIHandler) GetOverlayPNG(ctx context.Context, input *ImageInput) (*RawOutput, error) {
	doc, err := h.document(ctx)
	if err != nil {
		return nil, err
	}
	opts := overlay.PNGOptions{SVG: overlay.DefaultSVGOptions()}
	opts.SVG.Width, opts.SVG.Height = input.Width, input.Height
	if input.Legend {
		lv, err := h.svc.Session.Legend(ctx)
		if err != nil {
			return nil, toHTTP(err)
		}
		opts.LegendTitle = lv.Title
		opts.Legend = lv.Entries
	}
	data, err := overlay.EncodePNG(h.svc.Session.Geometry(), doc, opts)
	if err != nil {
		return nil, huma.Error500InternalServerError("rendering overlay", err)
	}
	metrics.RendersTotal.WithLabelValues("png").Inc()
	return &RawOutput{ContentType: "image/png", CacheControl: "no-cache", Body: data}, nil
}

func (h *APIHandler) PostExport(ctx context.Context, input *ExportInput) (*struct{ Body service.TileFile }, error) {
	if h.svc.Tiles == nil {
		return nil, huma.Error503ServiceUnavailable("tile export not available")
	}
	doc, err := h.document(ctx)
	if err != nil {
		return nil, err
	}
	cfg := tiler.TileConfig{Layer: input.Body.Layer, MinZoom: input.Body.MinZoom, MaxZoom: input.Body.MaxZoom}
	tf, err := h.svc.Tiles.Export(ctx, input.Body.Name, doc.Collection, cfg.WithDefaults())
	if err != nil {
		return nil, toHTTP(err)
	}
	metrics.RendersTotal.WithLabelValues("pmtiles").Inc()
	return &struct{ Body service.TileFile }{Body: tf}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Tiles == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tiles.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}
