// Package selection tracks which data source and layer-group member a session
// is looking at.
package selection

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/notify"
)

// UnknownLayerError is returned when a selection names an id that is not in
// the catalog, or names a definition of the wrong kind.
type UnknownLayerError struct {
	ID   string
	Want catalog.Kind
}

func (e *UnknownLayerError) Error() string {
	return fmt.Sprintf("unknown %s layer %q", e.Want, e.ID)
}

// Selection is a point-in-time copy of the state.
type Selection struct {
	DataSourceID string   `json:"dataSourceId" doc:"Active data source" example:"price"`
	GroupKey     string   `json:"groupKey,omitempty" doc:"Active layer group" example:"political_spectrum"`
	MemberIDs    []string `json:"memberIds" doc:"Active group members (at most one)"`
	SourceType   string   `json:"sourceType,omitempty" doc:"Derived active source type" example:"rechts"`
}

// Change is delivered to OnChange subscribers after a mutation.
type Change struct {
	Previous Selection
	Current  Selection
}

// DataSourceChanged reports whether the mutation switched data source.
func (c Change) DataSourceChanged() bool {
	return c.Previous.DataSourceID != c.Current.DataSourceID
}

// State is the mutable selection of one session. It is owned by a single
// goroutine and is not safe for concurrent use.
type State struct {
	cat    *catalog.Catalog
	logger *slog.Logger

	dataSourceID string
	groupKey     string
	memberID     string

	observers notify.Observers[Change]
}

// New seeds a State from the catalog defaults.
//
// The member is the first Default group member, else the first group member.
// The data source is the first Default data source, else the member's coupled
// data source, else the first data source.
func New(cat *catalog.Catalog, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{cat: cat, logger: logger}

	sources := cat.ListByKind(catalog.KindDataSource)
	if len(sources) == 0 {
		return nil, &catalog.ConfigurationError{Reason: "no data source defined", Err: catalog.ErrNoDataSource}
	}

	members := cat.ListByKind(catalog.KindGroupMember)
	if m, ok := firstDefault(members); ok {
		s.memberID, s.groupKey = m.ID, m.GroupKey
	} else if len(members) > 0 {
		s.memberID, s.groupKey = members[0].ID, members[0].GroupKey
	}

	if d, ok := firstDefault(sources); ok {
		s.dataSourceID = d.ID
		return s, nil
	}
	s.dataSourceID = sources[0].ID
	if m, ok := cat.FindByID(s.memberID); ok {
		if coupled, ok := s.coupledSource(m); ok {
			s.dataSourceID = coupled
		}
	}
	return s, nil
}

func firstDefault(defs []catalog.Definition) (catalog.Definition, bool) {
	for _, d := range defs {
		if d.Default {
			return d, true
		}
	}
	return catalog.Definition{}, false
}

// SelectDataSource activates a data source. On error the state is unchanged.
func (s *State) SelectDataSource(id string) error {
	def, ok := s.cat.FindByID(id)
	if !ok || def.Kind != catalog.KindDataSource {
		err := &UnknownLayerError{ID: id, Want: catalog.KindDataSource}
		s.logger.Warn("selection rejected", "id", id, "error", err)
		return err
	}
	if s.dataSourceID == id {
		return nil
	}
	prev := s.Snapshot()
	s.dataSourceID = id
	s.observers.Notify(Change{Previous: prev, Current: s.Snapshot()})
	return nil
}

// SelectGroupMember makes id the only active member of its group and
// re-resolves the active data source to the first data source sharing the
// member's source type, when one exists. Selecting the active member again is
// a no-op.
func (s *State) SelectGroupMember(id string) error {
	def, ok := s.cat.FindByID(id)
	if !ok || def.Kind != catalog.KindGroupMember {
		err := &UnknownLayerError{ID: id, Want: catalog.KindGroupMember}
		s.logger.Warn("selection rejected", "id", id, "error", err)
		return err
	}

	next := s.dataSourceID
	if coupled, ok := s.coupledSource(def); ok {
		next = coupled
	}
	if s.memberID == id && s.groupKey == def.GroupKey && s.dataSourceID == next {
		return nil
	}

	prev := s.Snapshot()
	s.memberID = id
	s.groupKey = def.GroupKey
	s.dataSourceID = next
	s.observers.Notify(Change{Previous: prev, Current: s.Snapshot()})
	return nil
}

func (s *State) coupledSource(member catalog.Definition) (string, bool) {
	want := member.DerivedSourceType()
	for _, d := range s.cat.ListByKind(catalog.KindDataSource) {
		if d.SourceType == want {
			return d.ID, true
		}
	}
	return "", false
}

// DataSourceID returns the active data source id.
func (s *State) DataSourceID() string { return s.dataSourceID }

// GroupKey returns the active layer group, or "" when the catalog has none.
func (s *State) GroupKey() string { return s.groupKey }

// MemberIDs returns the active group members. At most one.
func (s *State) MemberIDs() []string {
	if s.memberID == "" {
		return []string{}
	}
	return []string{s.memberID}
}

// ActiveSourceType is the derived source type of the active member, falling
// back to the source type of the active data source.
func (s *State) ActiveSourceType() string {
	if m, ok := s.cat.FindByID(s.memberID); ok {
		return m.DerivedSourceType()
	}
	d, _ := s.cat.FindByID(s.dataSourceID)
	return d.SourceType
}

// SelectableDataSources lists the data sources matching the active source
// type, or every data source when none match.
func (s *State) SelectableDataSources() []catalog.Definition {
	all := s.cat.ListByKind(catalog.KindDataSource)
	st := s.ActiveSourceType()
	if st == "" {
		return all
	}
	out := slices.DeleteFunc(slices.Clone(all), func(d catalog.Definition) bool {
		return d.SourceType != st
	})
	if len(out) == 0 {
		return all
	}
	return out
}

// ActiveDataSource returns the definition of the active data source.
func (s *State) ActiveDataSource() catalog.Definition {
	d, _ := s.cat.FindByID(s.dataSourceID)
	return d
}

// Snapshot copies the current state.
func (s *State) Snapshot() Selection {
	return Selection{
		DataSourceID: s.dataSourceID,
		GroupKey:     s.groupKey,
		MemberIDs:    s.MemberIDs(),
		SourceType:   s.ActiveSourceType(),
	}
}

// OnChange subscribes fn to successful mutations that changed the state.
// fn runs synchronously on the mutating goroutine.
func (s *State) OnChange(fn func(Change)) (unsubscribe func()) {
	return s.observers.Subscribe(fn)
}
