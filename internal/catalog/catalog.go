// Package catalog holds the immutable registry of layer definitions:
// selectable data sources and the members of mutually exclusive layer groups.
package catalog

import (
	"errors"
	"fmt"
)

// Kind distinguishes data sources from layer-group members.
type Kind string

const (
	KindDataSource  Kind = "data-source"
	KindGroupMember Kind = "group-member"
)

// Legend describes how a layer's legend is labelled.
type Legend struct {
	Title       string   `json:"title" yaml:"title" doc:"Legend title" example:"CO2 intensity"`
	Unit        string   `json:"unit" yaml:"unit" doc:"Unit label" example:"gCO2eq/kWh"`
	ColorTheme  string   `json:"colorTheme" yaml:"colorTheme" enum:"pollution,price,renewable,political" doc:"Color theme"`
	Breakpoints []string `json:"breakpoints" yaml:"breakpoints" doc:"Labels for the palette steps"`
}

// Definition is a single catalog entry. Immutable once loaded.
//
// SourceType links group members to the data sources they imply: selecting a
// member switches the active data source to the first data source of the same
// source type.
type Definition struct {
	ID          string `json:"id" yaml:"id" doc:"Unique layer identifier" example:"co2"`
	Label       string `json:"label" yaml:"label" doc:"Display label" example:"CO2 intensity"`
	Kind        Kind   `json:"kind" yaml:"kind" enum:"data-source,group-member" doc:"Layer kind"`
	GroupKey    string `json:"groupKey,omitempty" yaml:"groupKey,omitempty" doc:"Layer group for group members" example:"political_spectrum"`
	SourceType  string `json:"sourceType,omitempty" yaml:"sourceType,omitempty" doc:"Source type shared by members and data sources" example:"links"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" doc:"Short description"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty" doc:"Icon URL or name"`
	HexColor    string `json:"hexColor,omitempty" yaml:"hexColor,omitempty" doc:"Accent color (CSS)" example:"#FF0000"`
	Default     bool   `json:"default,omitempty" yaml:"default,omitempty" doc:"Selected when a session starts"`
	Legend      Legend `json:"legend" yaml:"legend" doc:"Legend configuration"`
}

// DerivedSourceType is the source type a group member implies. Members without
// an explicit SourceType imply their own id.
func (d Definition) DerivedSourceType() string {
	if d.SourceType != "" {
		return d.SourceType
	}
	return d.ID
}

// ConfigurationError reports a malformed catalog. It is fatal at bootstrap.
type ConfigurationError struct {
	ID     string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return "layer catalog: " + e.Reason
	}
	return fmt.Sprintf("layer catalog: %q: %s", e.ID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrNoDataSource is wrapped by ConfigurationError values raised for catalogs
// without any data source.
var ErrNoDataSource = errors.New("catalog has no data source")

// Catalog is a read-only registry; concurrent reads are safe.
type Catalog struct {
	defs   []Definition
	byID   map[string]int
	groups []string
}

// Load validates defs and builds a catalog preserving input order.
func Load(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	seenGroup := map[string]bool{}

	for _, d := range defs {
		if d.ID == "" {
			return nil, &ConfigurationError{Reason: "definition without id"}
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, &ConfigurationError{ID: d.ID, Reason: "duplicate id"}
		}
		switch d.Kind {
		case KindDataSource:
		case KindGroupMember:
			if d.GroupKey == "" {
				return nil, &ConfigurationError{ID: d.ID, Reason: "group member without groupKey"}
			}
			if !seenGroup[d.GroupKey] {
				seenGroup[d.GroupKey] = true
				c.groups = append(c.groups, d.GroupKey)
			}
		default:
			return nil, &ConfigurationError{ID: d.ID, Reason: fmt.Sprintf("unknown kind %q", d.Kind)}
		}

		d.Legend.Breakpoints = append([]string(nil), d.Legend.Breakpoints...)
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// FindByID looks up a definition.
func (c *Catalog) FindByID(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// ListByKind returns definitions of kind in input order.
func (c *Catalog) ListByKind(kind Kind) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ListGroupMembers returns the members of groupKey in input order.
func (c *Catalog) ListGroupMembers(groupKey string) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Kind == KindGroupMember && d.GroupKey == groupKey {
			out = append(out, d)
		}
	}
	return out
}

// Groups returns group keys in first-seen order.
func (c *Catalog) Groups() []string {
	return append([]string(nil), c.groups...)
}

// All returns every definition in input order.
func (c *Catalog) All() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }
