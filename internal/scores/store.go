// Package scores holds per-region metric values and the pipeline that fetches them.
package scores

import (
	"sort"
	"sync"
	"time"
)

// RegionScore is one region's value. A nil Value means "no data" and is never
// treated as zero.
type RegionScore struct {
	RegionID string   `json:"regionId" doc:"Region key (postal code)" example:"80331"`
	Value    *float64 `json:"value" doc:"Score in [0,100]; null means no data" example:"55"`
}

// Float is a convenience for building non-nil values.
func Float(v float64) *float64 { return &v }

// Store holds the most recently applied fetch result. Writes come from a
// single owner; reads may happen from any goroutine.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]RegionScore
	sorted    []RegionScore
	updatedAt time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byID: map[string]RegionScore{}}
}

// Set replaces the whole set. An empty slice means no data is available.
// Duplicate region ids keep the last value.
func (s *Store) Set(scores []RegionScore) {
	byID := make(map[string]RegionScore, len(scores))
	for _, sc := range scores {
		if sc.Value != nil {
			v := *sc.Value
			sc.Value = &v
		}
		byID[sc.RegionID] = sc
	}
	sorted := make([]RegionScore, 0, len(byID))
	for _, sc := range byID {
		sorted = append(sorted, sc)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RegionID < sorted[j].RegionID })

	s.mu.Lock()
	s.byID = byID
	s.sorted = sorted
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Get looks up a region.
func (s *Store) Get(regionID string) (RegionScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.byID[regionID]
	return sc, ok
}

// All returns a snapshot sorted by region id.
func (s *Store) All() []RegionScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RegionScore(nil), s.sorted...)
}

// RegionIDs returns the keys in sorted order.
func (s *Store) RegionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.sorted))
	for i, sc := range s.sorted {
		ids[i] = sc.RegionID
	}
	return ids
}

// Len returns the number of regions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// UpdatedAt is the time of the last Set, zero before the first.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
