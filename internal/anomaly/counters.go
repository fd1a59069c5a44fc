package anomaly

import (
	"sort"

	"tally/internal/protocol"
	"tally/pkg/domain"
)

// Count tallies one anomaly kind under a commission. A precinct flagged in
// several races counts once in PrecinctCount.
type Count struct {
	ProtocolCount int                   `json:"protocol_count"`
	PrecinctCount int                   `json:"precinct_count"`
	Precincts     []domain.CommissionID `json:"precincts"`
}

func (c *Count) addPrecinct(id domain.CommissionID) {
	i := sort.Search(len(c.Precincts), func(i int) bool { return c.Precincts[i] >= id })
	if i < len(c.Precincts) && c.Precincts[i] == id {
		return
	}
	c.Precincts = append(c.Precincts, 0)
	copy(c.Precincts[i+1:], c.Precincts[i:])
	c.Precincts[i] = id
	c.PrecinctCount = len(c.Precincts)
}

// Counters holds per-kind anomaly counts for one commission.
type Counters map[protocol.AnomalyKind]*Count

// NewCounters returns empty counters.
func NewCounters() Counters {
	return make(Counters)
}

// Observe records one flagged leaf protocol of precinct.
func (c Counters) Observe(precinct domain.CommissionID, kinds []protocol.AnomalyKind) {
	for _, k := range kinds {
		n := c.get(k)
		n.ProtocolCount++
		n.addPrecinct(precinct)
	}
}

// Merge folds o into c, deduplicating precincts.
func (c Counters) Merge(o Counters) {
	for k, src := range o {
		n := c.get(k)
		n.ProtocolCount += src.ProtocolCount
		for _, id := range src.Precincts {
			n.addPrecinct(id)
		}
	}
}

// Precincts is the number of distinct precincts flagged with any kind.
func (c Counters) Precincts() int {
	seen := make(map[domain.CommissionID]struct{})
	for _, n := range c {
		for _, id := range n.Precincts {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// Get returns the count for kind, zero when nothing was flagged.
func (c Counters) Get(kind protocol.AnomalyKind) Count {
	if n, ok := c[kind]; ok {
		return *n
	}
	return Count{}
}

func (c Counters) get(k protocol.AnomalyKind) *Count {
	n, ok := c[k]
	if !ok {
		n = &Count{}
		c[k] = n
	}
	return n
}
