// Package registry deduplicates recurring real-world objects (candidates,
// parties, addresses, commission members) seen across many scraped pages
// and hands out stable ids for them.
package registry

import (
	"sort"
	"sync"

	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	pstrings "tally/pkg/platform/strings"
)

// Registry is a keyed upsert store for one kind of entity. Reads are safe
// for concurrent use; writes are serialized.
type Registry struct {
	mu       sync.RWMutex
	kind     Kind
	strategy Strategy
	next     domain.EntityID
	byKey    map[string]domain.EntityID
	records  map[domain.EntityID]*Record
}

// New returns an empty registry for kind using strategy.
func New(kind Kind, strategy Strategy) *Registry {
	return &Registry{
		kind:     kind,
		strategy: strategy,
		byKey:    make(map[string]domain.EntityID),
		records:  make(map[domain.EntityID]*Record),
	}
}

// Kind returns the registry's kind.
func (r *Registry) Kind() Kind {
	return r.kind
}

// Upsert registers rec under keys and notes venue as a place it was seen.
// When any key is already known the stored record is reconciled with rec
// and the remaining keys are attached to it. Keys that resolve to two
// different records are a conflict.
func (r *Registry) Upsert(keys []string, rec Record, venue domain.Venue) (domain.EntityID, error) {
	keys = pstrings.NormalizeKeys(keys)
	if len(keys) == 0 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s: at least one non-empty key is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id domain.EntityID
	for _, k := range keys {
		found, ok := r.byKey[k]
		if !ok {
			continue
		}
		if id != 0 && found != id {
			return 0, dErrors.Newf(dErrors.CodeConflict,
				"%s: keys %q resolve to records %d and %d", r.kind, keys, id, found)
		}
		id = found
	}

	if id == 0 {
		r.next++
		id = r.next
		stored := rec.clone()
		stored.ID = id
		stored.Kind = r.kind
		stored.Keys = nil
		stored.Alternates = nil
		stored.RelatedTo = nil
		r.records[id] = &stored
	} else {
		stored := r.records[id]
		scratch := stored.clone()
		// A sighting without a venue cannot be told apart from a repeat.
		newVenue := venue.CommissionID != 0 && !stored.hasVenue(venue)
		if err := r.strategy.merge(&scratch, rec, newVenue); err != nil {
			return 0, err
		}
		*stored = scratch
	}

	stored := r.records[id]
	for _, k := range keys {
		r.byKey[k] = id
		stored.addKey(k)
	}
	stored.addVenue(venue)
	return id, nil
}

// Get returns a copy of the record with id.
func (r *Registry) Get(id domain.EntityID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Resolve returns the id registered under key.
func (r *Registry) Resolve(key string) (domain.EntityID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[pstrings.NormalizeKey(key)]
	return id, ok
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Records returns copies of every record sorted by id.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeenAtMultipleVenues returns records related to more than one venue,
// for example a member seated on two precinct commissions.
func (r *Registry) SeenAtMultipleVenues() []Record {
	var out []Record
	for _, rec := range r.Records() {
		if len(rec.RelatedTo) > 1 {
			out = append(out, rec)
		}
	}
	return out
}

// Set holds one registry per kind for a single ingestion run.
type Set struct {
	regs map[Kind]*Registry
}

// DefaultStrategies maps each kind to its merge strategy.
var DefaultStrategies = map[Kind]Strategy{
	KindCandidate: ReplaceIfAbsent,
	KindParty:     ReplaceIfAbsent,
	KindAddress:   UnionAddresses,
	KindMember:    ReplaceIfAbsent,
	KindRole:      ReplaceIfAbsent,
	KindSponsor:   SumCounters,
	KindDistrict:  Strict,
}

// NewSet returns a Set with a registry for every kind.
func NewSet() *Set {
	s := &Set{regs: make(map[Kind]*Registry, len(Kinds))}
	for _, k := range Kinds {
		s.regs[k] = New(k, DefaultStrategies[k])
	}
	return s
}

// Kind returns the registry for kind, or nil for an unknown kind.
func (s *Set) Kind(kind Kind) *Registry {
	return s.regs[kind]
}

// Upsert registers rec in the registry for kind.
func (s *Set) Upsert(kind Kind, keys []string, rec Record, venue domain.Venue) (domain.EntityID, error) {
	reg, ok := s.regs[kind]
	if !ok {
		return 0, dErrors.Newf(dErrors.CodeValidation, "unknown registry kind %q", kind)
	}
	return reg.Upsert(keys, rec, venue)
}

// Records returns the records of kind sorted by id.
func (s *Set) Records(kind Kind) []Record {
	if reg, ok := s.regs[kind]; ok {
		return reg.Records()
	}
	return nil
}

// SeenAtMultipleVenues returns the records of kind seen at more than one
// venue.
func (s *Set) SeenAtMultipleVenues(kind Kind) []Record {
	if reg, ok := s.regs[kind]; ok {
		return reg.SeenAtMultipleVenues()
	}
	return nil
}

// All returns every record of every kind, grouped by kind in Kinds order.
func (s *Set) All() []Record {
	var out []Record
	for _, k := range Kinds {
		out = append(out, s.regs[k].Records()...)
	}
	return out
}
