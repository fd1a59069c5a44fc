package protocol

import (
	"sort"

	"tally/pkg/domain"
)

// Stats is the per-commission statistics block.
type Stats struct {
	SubCommissions int `json:"sub_commissions"`
	Protocols      int `json:"protocols"`
	EmptyProtocols int `json:"empty_protocols"`
	Anomalies      int `json:"anomalies"`
}

// Commission is one electoral commission, or a virtual district grouping.
// Parent is a weak upward reference; children are looked up through Index.
type Commission struct {
	ID        domain.CommissionID   `json:"id"`
	Level     domain.Level          `json:"level"`
	Name      string                `json:"name"`
	Parent    *domain.CommissionRef `json:"parent,omitempty"`
	AddressID domain.EntityID       `json:"address_id,omitempty"`
	// District is the virtual district a precinct is grouped into.
	District      domain.CommissionID `json:"district,omitempty"`
	DistrictLabel string              `json:"district_label,omitempty"`
	Stats         Stats               `json:"stats"`
}

// Ref returns the commission's reference.
func (c *Commission) Ref() domain.CommissionRef {
	return domain.CommissionRef{ID: c.ID, Level: c.Level}
}

// Index holds every commission of a run and the parent→children map built
// once all commissions are known.
type Index struct {
	byRef    map[domain.CommissionRef]*Commission
	children map[domain.CommissionRef][]domain.CommissionRef
	byAddr   map[domain.EntityID][]domain.CommissionRef
	root     *Commission
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byRef: make(map[domain.CommissionRef]*Commission)}
}

// Add registers c. Adding the same reference twice replaces the earlier one.
func (x *Index) Add(c *Commission) {
	x.byRef[c.Ref()] = c
	if c.Level == domain.LevelCity {
		x.root = c
	}
	x.children = nil
}

// Get returns the commission for ref.
func (x *Index) Get(ref domain.CommissionRef) (*Commission, bool) {
	c, ok := x.byRef[ref]
	return c, ok
}

// Root returns the city commission.
func (x *Index) Root() *Commission {
	return x.root
}

// Build computes the parent→children and address indexes. It must run
// before the index is shared between goroutines.
func (x *Index) Build() {
	x.children = make(map[domain.CommissionRef][]domain.CommissionRef)
	x.byAddr = make(map[domain.EntityID][]domain.CommissionRef)
	for ref, c := range x.byRef {
		if c.Parent != nil {
			x.children[*c.Parent] = append(x.children[*c.Parent], ref)
		}
		if c.Level == domain.LevelPrecinct && c.AddressID != 0 {
			x.byAddr[c.AddressID] = append(x.byAddr[c.AddressID], ref)
		}
		if c.Level == domain.LevelPrecinct && c.District != 0 {
			dref := domain.CommissionRef{ID: c.District, Level: domain.LevelDistrict}
			x.children[dref] = append(x.children[dref], ref)
		}
	}
	for _, refs := range x.children {
		sortRefs(refs)
	}
	for _, refs := range x.byAddr {
		sortRefs(refs)
	}
}

func (x *Index) ensureBuilt() {
	if x.children == nil {
		x.Build()
	}
}

// Children returns the direct children of ref. District commissions list
// the precincts grouped into them.
func (x *Index) Children(ref domain.CommissionRef) []domain.CommissionRef {
	x.ensureBuilt()
	return x.children[ref]
}

// Siblings returns the commissions sharing ref's parent, excluding ref.
func (x *Index) Siblings(ref domain.CommissionRef) []domain.CommissionRef {
	c, ok := x.byRef[ref]
	if !ok || c.Parent == nil {
		return nil
	}
	var out []domain.CommissionRef
	for _, s := range x.Children(*c.Parent) {
		if s != ref {
			out = append(out, s)
		}
	}
	return out
}

// CoLocated returns the other precincts sharing ref's address.
func (x *Index) CoLocated(ref domain.CommissionRef) []domain.CommissionRef {
	x.ensureBuilt()
	c, ok := x.byRef[ref]
	if !ok || c.AddressID == 0 {
		return nil
	}
	var out []domain.CommissionRef
	for _, s := range x.byAddr[c.AddressID] {
		if s != ref {
			out = append(out, s)
		}
	}
	return out
}

// ByLevel returns every commission of a level sorted by id.
func (x *Index) ByLevel(level domain.Level) []*Commission {
	var out []*Commission
	for _, c := range x.byRef {
		if c.Level == level {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ancestors returns ref's parent chain up to the root, plus its district.
func (x *Index) Ancestors(ref domain.CommissionRef) []domain.CommissionRef {
	var out []domain.CommissionRef
	c, ok := x.byRef[ref]
	if !ok {
		return nil
	}
	if c.District != 0 {
		out = append(out, domain.CommissionRef{ID: c.District, Level: domain.LevelDistrict})
	}
	for depth := 0; c.Parent != nil && depth < len(domain.Levels); depth++ {
		out = append(out, *c.Parent)
		next, ok := x.byRef[*c.Parent]
		if !ok {
			break
		}
		c = next
	}
	return out
}

// Len is the number of commissions.
func (x *Index) Len() int {
	return len(x.byRef)
}

// All returns every commission ordered by level then id.
func (x *Index) All() []*Commission {
	var out []*Commission
	for _, level := range domain.Levels {
		out = append(out, x.ByLevel(level)...)
	}
	return out
}

func sortRefs(refs []domain.CommissionRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Level != refs[j].Level {
			return refs[i].Level < refs[j].Level
		}
		return refs[i].ID < refs[j].ID
	})
}
