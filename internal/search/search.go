// Package search resolves region queries and tracks the single highlighted region.
package search

import (
	"strings"

	"github.com/joeblew999/plat-overlay/internal/notify"
)

// Keyspace is the set of region ids a query is resolved against.
type Keyspace interface {
	RegionIDs() []string
}

// Resolve returns the region id equal to query after trimming whitespace and
// ignoring case. There is no prefix or fuzzy matching.
func Resolve(query string, keys Keyspace) (string, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", false
	}
	for _, id := range keys.RegionIDs() {
		if strings.EqualFold(strings.TrimSpace(id), q) {
			return id, true
		}
	}
	return "", false
}

// Status of the highlight state machine.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusResolved Status = "resolved"
	StatusNotFound Status = "not-found"
)

// State is the observable highlight state.
type State struct {
	HighlightedRegionID string `json:"highlightedRegionId,omitempty" doc:"Highlighted region, empty when none" example:"80331"`
	Status              Status `json:"status" enum:"idle,resolved,not-found" doc:"Search status"`
	Query               string `json:"query,omitempty" doc:"Last submitted query"`
}

// Highlighted reports whether id is the highlighted region.
func (s State) Highlighted(id string) bool {
	return s.HighlightedRegionID != "" && s.HighlightedRegionID == id
}

// Highlighter owns the highlight state. Not safe for concurrent use.
type Highlighter struct {
	state     State
	observers notify.Observers[State]
}

// NewHighlighter starts Idle.
func NewHighlighter() *Highlighter {
	return &Highlighter{state: State{Status: StatusIdle}}
}

// State returns the current state.
func (h *Highlighter) State() State { return h.state }

// Submit resolves query against keys. A miss clears the highlight and moves to
// NotFound, which any later Submit, SetHighlight or Clear leaves.
func (h *Highlighter) Submit(query string, keys Keyspace) State {
	next := State{Query: query}
	if id, ok := Resolve(query, keys); ok {
		next.HighlightedRegionID = id
		next.Status = StatusResolved
	} else {
		next.Status = StatusNotFound
	}
	h.set(next)
	return next
}

// SetHighlight highlights id, replacing any previous highlight. An empty id
// clears.
func (h *Highlighter) SetHighlight(id string) State {
	if id == "" {
		return h.Clear()
	}
	next := State{HighlightedRegionID: id, Status: StatusResolved}
	h.set(next)
	return next
}

// Clear returns to Idle.
func (h *Highlighter) Clear() State {
	next := State{Status: StatusIdle}
	h.set(next)
	return next
}

func (h *Highlighter) set(next State) {
	if next == h.state {
		return
	}
	h.state = next
	h.observers.Notify(next)
}

// OnChange subscribes fn to state changes.
func (h *Highlighter) OnChange(fn func(State)) (unsubscribe func()) {
	return h.observers.Subscribe(fn)
}
