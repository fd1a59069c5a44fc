package registry

import (
	"sort"

	"tally/pkg/domain"
)

// Kind names a class of registered entity.
type Kind string

const (
	KindCandidate Kind = "candidate"
	KindParty     Kind = "party"
	KindAddress   Kind = "address"
	KindMember    Kind = "member"
	KindRole      Kind = "role"
	KindSponsor   Kind = "sponsor"
	KindDistrict  Kind = "district"
)

// Kinds lists every kind a Set holds.
var Kinds = []Kind{KindCandidate, KindParty, KindAddress, KindMember, KindRole, KindSponsor, KindDistrict}

// Record is one deduplicated real-world entity.
type Record struct {
	ID   domain.EntityID `json:"id"`
	Kind Kind            `json:"kind"`
	// Keys are the normalized keys the record is known by, in registration order.
	Keys   []string          `json:"keys"`
	Fields map[string]string `json:"fields,omitempty"`
	// Alternates holds differing values seen for a field after the first.
	Alternates map[string][]string `json:"alternates,omitempty"`
	Counters   map[string]int64    `json:"counters,omitempty"`
	// RelatedTo is the set of venues the entity was seen at, sorted.
	RelatedTo []domain.Venue `json:"related_to,omitempty"`
}

// Field returns a field value or "".
func (r Record) Field(name string) string {
	return r.Fields[name]
}

func (r *Record) hasVenue(v domain.Venue) bool {
	i := venueIndex(r.RelatedTo, v)
	return i < len(r.RelatedTo) && r.RelatedTo[i] == v
}

func (r *Record) addVenue(v domain.Venue) {
	if v.CommissionID == 0 || r.hasVenue(v) {
		return
	}
	i := venueIndex(r.RelatedTo, v)
	r.RelatedTo = append(r.RelatedTo, domain.Venue{})
	copy(r.RelatedTo[i+1:], r.RelatedTo[i:])
	r.RelatedTo[i] = v
}

func (r *Record) addKey(key string) {
	for _, k := range r.Keys {
		if k == key {
			return
		}
	}
	r.Keys = append(r.Keys, key)
}

func venueIndex(vs []domain.Venue, v domain.Venue) int {
	return sort.Search(len(vs), func(i int) bool { return !venueLess(vs[i], v) })
}

func venueLess(a, b domain.Venue) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	return a.CommissionID < b.CommissionID
}

func (r Record) clone() Record {
	out := r
	out.Keys = append([]string(nil), r.Keys...)
	out.RelatedTo = append([]domain.Venue(nil), r.RelatedTo...)
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	if r.Alternates != nil {
		out.Alternates = make(map[string][]string, len(r.Alternates))
		for k, v := range r.Alternates {
			out.Alternates[k] = append([]string(nil), v...)
		}
	}
	if r.Counters != nil {
		out.Counters = make(map[string]int64, len(r.Counters))
		for k, v := range r.Counters {
			out.Counters[k] = v
		}
	}
	return out
}
