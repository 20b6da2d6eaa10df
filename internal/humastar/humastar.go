// Package humastar serves Datastar SSE responses from Huma operations.
//
// A handler embeds [Handler], returns [Handler.Stream] from its operation and
// patches fragments through [SSE]. Request signals arrive as a raw JSON body
// and are read with [SignalsInput]. hypermedia.go adds Link-header actions and
// pagination for the JSON API.
package humastar

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-overlay/internal/templates"
)

// Handler is embedded by SSE handlers that render fragments.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream wraps fn in a Huma StreamResponse. fn runs with the request context
// and returns when the stream should close.
func (h *Handler) Stream(fn func(ctx context.Context, sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(humaCtx.Context(), NewSSE(humaCtx))
		},
	}
}

// Fragment renders a named fragment, or "" when it fails. Fragments are
// embedded and parsed at startup, so failures are programming errors and are
// caught by the template tests.
func (h *Handler) Fragment(name string, data any) string {
	out, err := h.Renderer.Render(name, data)
	if err != nil {
		return ""
	}
	return out
}

// SSE is a Datastar event generator bound to one response.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE needs the humago adapter to reach the underlying writer.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the children of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces the element at selector, which the fragment must carry
// again as its root id.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
		datastar.WithViewTransitions(),
	)
}

// Error sets the "error" signal.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals patches arbitrary signals.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object Datastar posts with every action.
type Signals map[string]any

func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns the signal as a string, or "" when absent or not a string.
func (s Signals) String(key string) string {
	if str, ok := s[key].(string); ok {
		return str
	}
	return ""
}

// Has reports whether the key was sent at all.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// EmptyInput is the input of operations without parameters.
type EmptyInput struct{}

// SignalsInput receives the raw Datastar signal body.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses the body or returns a Huma 400.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// SelectOptionData is the "select-option" fragment model.
type SelectOptionData struct {
	Value    string
	Label    string
	Selected bool
}
