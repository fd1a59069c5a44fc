package mathtarget

import (
	"sort"

	"tally/pkg/domain"
)

// Buckets groups units by a numeric key (an exact place, a rounded
// percentage) and tracks the vote weight each bucket contributed.
type Buckets struct {
	decimals int
	byKey    map[float64]*bucket
}

type bucket struct {
	units  map[domain.CommissionID]struct{}
	weight int64
}

// Bucket is a finished bucket. Percentage is Weight relative to the total
// passed to Finish.
type Bucket struct {
	Key        float64               `json:"key"`
	Units      []domain.CommissionID `json:"units"`
	UnitCount  int                   `json:"unit_count"`
	Weight     int64                 `json:"weight"`
	Percentage float64               `json:"percentage"`
}

// NewBuckets returns Buckets keyed by the key rounded to decimals; a negative
// value keys by the exact key.
func NewBuckets(decimals int) *Buckets {
	return &Buckets{decimals: decimals, byKey: make(map[float64]*bucket)}
}

// Add puts unit into the bucket for key with the given vote weight. Adding the
// same unit twice to one bucket counts its weight twice but the unit once.
func (b *Buckets) Add(key float64, unit domain.CommissionID, weight int64) {
	k := Round(key, b.decimals)
	bk, ok := b.byKey[k]
	if !ok {
		bk = &bucket{units: make(map[domain.CommissionID]struct{})}
		b.byKey[k] = bk
	}
	bk.units[unit] = struct{}{}
	bk.weight += weight
}

// Merge folds other into b.
func (b *Buckets) Merge(other *Buckets) {
	if other == nil {
		return
	}
	for k, ob := range other.byKey {
		bk, ok := b.byKey[k]
		if !ok {
			bk = &bucket{units: make(map[domain.CommissionID]struct{}, len(ob.units))}
			b.byKey[k] = bk
		}
		for u := range ob.units {
			bk.units[u] = struct{}{}
		}
		bk.weight += ob.weight
	}
}

// Len is the number of distinct keys.
func (b *Buckets) Len() int { return len(b.byKey) }

// Finish returns buckets sorted by key.
func (b *Buckets) Finish(total int64) []Bucket {
	return b.finish(total, 0)
}

// Repeated returns the buckets reached by at least minUnits units, sorted by
// key. Identical percentages across independent precincts are a weak signal
// of fabricated protocols.
func (b *Buckets) Repeated(total int64, minUnits int) []Bucket {
	if minUnits < 2 {
		minUnits = 2
	}
	return b.finish(total, minUnits)
}

func (b *Buckets) finish(total int64, minUnits int) []Bucket {
	out := make([]Bucket, 0, len(b.byKey))
	for k, bk := range b.byKey {
		if len(bk.units) < minUnits {
			continue
		}
		units := make([]domain.CommissionID, 0, len(bk.units))
		for u := range bk.units {
			units = append(units, u)
		}
		sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
		var pct float64
		if total > 0 {
			pct = float64(bk.weight) / float64(total) * 100
		}
		out = append(out, Bucket{
			Key:        k,
			Units:      units,
			UnitCount:  len(units),
			Weight:     bk.weight,
			Percentage: pct,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
