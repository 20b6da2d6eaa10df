package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/selection>; rel="selection"`,
		`</api/v1/overlay>; rel="overlay"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/layers": {
		`</api/v1/selection>; rel="selection"`,
		`</api/v1/legend>; rel="legend"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/selection": {
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/window>; rel="window"`,
		`</api/v1/overlay>; rel="overlay"`,
	},
	"/api/v1/window": {
		`</api/v1/scores>; rel="scores"`,
		`</api/v1/status>; rel="status"`,
	},
	"/api/v1/scores": {
		`</api/v1/window>; rel="window"`,
		`</api/v1/search>; rel="search"`,
	},
	"/api/v1/overlay": {
		`</api/v1/overlay/regions>; rel="regions"`,
		`</api/v1/overlay/svg>; rel="alternate"; type="image/svg+xml"`,
		`</api/v1/overlay/png>; rel="alternate"; type="image/png"`,
		`</api/v1/legend>; rel="legend"`,
	},
	"/api/v1/regions/{id}": {
		`</api/v1/overlay/regions>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/scores>; rel="scores"`,
	},
	"/api/v1/tiles": {
		`</api/v1/overlay>; rel="overlay"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers: static navigation links, a self link for item endpoints, and the
// actions and pagination links carried by the response body.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if a, ok := v.(humastar.Actor); ok {
			for _, act := range a.Actions() {
				ctx.AppendHeader("Link", act.LinkHeader())
			}
		}
		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}
