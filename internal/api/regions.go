package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/humastar"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
)

type RegionInput struct {
	ID string `path:"id" doc:"Region key" example:"80331"`
}

type ReportsInput struct {
	RegionInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
}

type SubmitReportInput struct {
	RegionInput
	Body service.ReportInput
}

// RegisterRegions registers region drill-in and report routes.
func (h *APIHandler) RegisterRegions(api huma.API) {
	huma.Get(api, "/api/v1/regions/{id}", h.GetRegion, huma.OperationTags("regions"))
	huma.Get(api, "/api/v1/regions/{id}/reports", h.GetReports, huma.OperationTags("regions"))
	huma.Post(api, "/api/v1/regions/{id}/reports", h.PostReport, huma.OperationTags("regions"), func(o *huma.Operation) {
		o.DefaultStatus = 201
	})
}

func (h *APIHandler) GetRegion(ctx context.Context, input *RegionInput) (*struct{ Body session.RegionDetail }, error) {
	sess, err := h.session()
	if err != nil {
		return nil, err
	}
	d, err := sess.Region(ctx, input.ID)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body session.RegionDetail }{Body: d}, nil
}

func (h *APIHandler) GetReports(ctx context.Context, input *ReportsInput) (*struct {
	Body humastar.PageBody[service.Report]
}, error) {
	if h.svc.Reports == nil {
		return nil, huma.Error503ServiceUnavailable("reports not available")
	}
	if sess := h.svc.Session; sess != nil && !sess.Geometry().Has(input.ID) {
		return nil, huma.Error404NotFound("region not found")
	}
	reports, err := h.svc.Reports.List(ctx, input.ID)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct {
		Body humastar.PageBody[service.Report]
	}{Body: humastar.Page(reports, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) PostReport(ctx context.Context, input *SubmitReportInput) (*struct{ Body service.Report }, error) {
	if h.svc.Reports == nil {
		return nil, huma.Error503ServiceUnavailable("reports not available")
	}
	in := input.Body
	if in.DataSourceID == "" && h.svc.Session != nil {
		snap, err := h.svc.Session.Snapshot(ctx)
		if err != nil {
			return nil, toHTTP(err)
		}
		in.DataSourceID = snap.Selection.DataSourceID
	}
	r, err := h.svc.Reports.Submit(ctx, input.ID, in)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body service.Report }{Body: r}, nil
}
