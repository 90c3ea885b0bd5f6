// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location holds the single source of truth for the currently resolved location.
package location

import (
	"sync"

	"github.com/wneessen/postalcode/internal/geo"
	"github.com/wneessen/postalcode/internal/geocode"
)

// Provenance names the user action that produced a resolution.
type Provenance int

const (
	ProvenanceNone Provenance = iota
	ProvenanceGPS
	ProvenanceSearch
	ProvenanceDrag
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceGPS:
		return "gps"
	case ProvenanceSearch:
		return "search"
	case ProvenanceDrag:
		return "drag"
	default:
		return "none"
	}
}

// Snapshot is a copy of the location state at one point in time.
type Snapshot struct {
	Resolved   bool
	Coordinate geo.Coordinate
	Address    geocode.AddressDetails
	Provenance Provenance
	// Seq is the sequence number of the request that produced the current location.
	Seq uint64
}

// Change describes the outcome of applying a result to the State.
type Change struct {
	// Updated is true if a found result replaced coordinate and address.
	Updated bool
	// Stale is true if the result belonged to a superseded request and was discarded.
	Stale bool
	// Changed is true if the update altered the state. Re-applying an identical result leaves it false.
	Changed bool
	Kind    geocode.Kind
	Err     error
	Seq     uint64
}

// State is the mutable location record. The zero value is not usable, use New.
type State struct {
	mu      sync.RWMutex
	latest  uint64
	current Snapshot
}

func New() *State {
	return &State{}
}

// Next issues the sequence number for a newly dispatched request. It supersedes all earlier numbers.
func (s *State) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// Latest returns the most recently issued sequence number.
func (s *State) Latest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// IsLatest reports whether seq is the most recently issued sequence number.
func (s *State) IsLatest(seq uint64) bool {
	return s.Latest() == seq
}

// Apply applies the result of the request with sequence number seq. Results of superseded requests are
// discarded. Only found results mutate the state, replacing coordinate and address together.
func (s *State) Apply(result geocode.Result, seq uint64, prov Provenance) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := Change{Kind: result.Kind, Seq: seq}
	if seq != s.latest {
		change.Stale = true
		return change
	}
	if result.Kind != geocode.KindFound {
		change.Err = result.Err
		return change
	}

	next := Snapshot{
		Resolved:   true,
		Coordinate: result.Coordinate,
		Address:    result.Address,
		Provenance: prov,
		Seq:        seq,
	}
	change.Updated = true
	change.Changed = !s.current.sameLocation(next)
	s.current = next
	return change
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Coordinate returns the current coordinate and whether a location was resolved yet.
func (s *State) Coordinate() (geo.Coordinate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Coordinate, s.current.Resolved
}

func (s Snapshot) sameLocation(other Snapshot) bool {
	return s.Resolved == other.Resolved &&
		s.Coordinate == other.Coordinate &&
		s.Address == other.Address
}
