package registry

import (
	"sort"

	dErrors "tally/pkg/domain-errors"
)

// Strategy decides how a new sighting of a known entity is reconciled with
// the stored record.
type Strategy int

const (
	// ReplaceIfAbsent keeps stored values and fills fields the record lacks.
	ReplaceIfAbsent Strategy = iota
	// UnionAddresses keeps differing values as alternates.
	UnionAddresses
	// SumCounters adds counters once per new venue; fields follow ReplaceIfAbsent.
	SumCounters
	// Strict rejects any differing non-empty field.
	Strict
)

func (s Strategy) String() string {
	switch s {
	case ReplaceIfAbsent:
		return "replace_if_absent"
	case UnionAddresses:
		return "union_addresses"
	case SumCounters:
		return "sum_counters"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// merge reconciles incoming into stored. newVenue reports whether the
// sighting comes from a venue the record has not been seen at.
func (s Strategy) merge(stored *Record, incoming Record, newVenue bool) error {
	if s == Strict {
		for _, name := range sortedFields(incoming.Fields) {
			have, want := stored.Fields[name], incoming.Fields[name]
			if have != "" && want != "" && have != want {
				return dErrors.Newf(dErrors.CodeConflict,
					"%s %d: field %q is %q, got %q", stored.Kind, stored.ID, name, have, want)
			}
		}
	}

	for _, name := range sortedFields(incoming.Fields) {
		want := incoming.Fields[name]
		if want == "" {
			continue
		}
		have := stored.Fields[name]
		switch {
		case have == "":
			if stored.Fields == nil {
				stored.Fields = make(map[string]string)
			}
			stored.Fields[name] = want
		case have != want && s == UnionAddresses:
			addAlternate(stored, name, want)
		}
	}

	for name, v := range incoming.Counters {
		if stored.Counters == nil {
			stored.Counters = make(map[string]int64)
		}
		switch {
		case s == SumCounters && newVenue:
			stored.Counters[name] += v
		case stored.Counters[name] == 0:
			stored.Counters[name] = v
		}
	}
	return nil
}

func addAlternate(r *Record, name, value string) {
	for _, v := range r.Alternates[name] {
		if v == value {
			return
		}
	}
	if r.Alternates == nil {
		r.Alternates = make(map[string][]string)
	}
	r.Alternates[name] = append(r.Alternates[name], value)
}

func sortedFields(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
