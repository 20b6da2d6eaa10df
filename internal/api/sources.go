package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/service"
)

type IngestInput struct {
	Name string `path:"name" doc:"CSV file under the sources directory" example:"march.csv"`
}

type IngestBody struct {
	Name string `json:"name" doc:"Ingested file"`
	Rows int    `json:"rows" doc:"Observations loaded"`
}

// RegisterSources registers score source routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Post(api, "/api/v1/sources/{name}/ingest", h.PostIngest, huma.OperationTags("sources"))
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) PostIngest(ctx context.Context, input *IngestInput) (*struct{ Body IngestBody }, error) {
	if h.svc.Sources == nil {
		return nil, huma.Error503ServiceUnavailable("sources not available")
	}
	n, err := h.svc.Sources.Ingest(ctx, input.Name)
	if err != nil {
		return nil, toHTTP(err)
	}
	if sess := h.svc.Session; sess != nil {
		if _, err := sess.Refresh(ctx); err != nil {
			return nil, toHTTP(err)
		}
	}
	return &struct{ Body IngestBody }{Body: IngestBody{Name: input.Name, Rows: n}}, nil
}
