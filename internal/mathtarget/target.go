// Package mathtarget accumulates a scalar value contributed by many leaf
// units (precincts) and renders display-ready distribution summaries.
//
// A Target is a running accumulator: Add and Merge are cheap and keep enough
// state for Finish to report size, sum, average, min/max with the set of units
// that attained them, median and a value histogram. Merge makes accumulation
// associative, so a city profile built from territorial profiles equals one
// built from the precincts directly.
package mathtarget

import (
	"encoding/json"
	"math"
	"sort"

	"tally/pkg/domain"
)

// Target is a running accumulator over one scalar value.
type Target struct {
	decimals int
	size     int
	sum      float64
	min      *extreme
	max      *extreme
	hist     map[float64]int
}

type extreme struct {
	value float64
	units map[domain.CommissionID]struct{}
}

// Extreme is a finished min or max: the value and every unit that attained it.
type Extreme struct {
	Value float64               `json:"value"`
	Units []domain.CommissionID `json:"units"`
}

// HistogramBin is one value and how many units reported it.
type HistogramBin struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// Summary is the display-ready form of a Target.
type Summary struct {
	Size      int            `json:"size"`
	Sum       float64        `json:"sum"`
	Average   float64        `json:"average"`
	Min       *Extreme       `json:"min,omitempty"`
	Max       *Extreme       `json:"max,omitempty"`
	Median    float64        `json:"median"`
	Histogram []HistogramBin `json:"histogram"`
}

// New returns a Target that keys its histogram by exact value.
func New() *Target {
	return &Target{decimals: -1, hist: make(map[float64]int)}
}

// NewRounded returns a Target that keys its histogram and extremes by the
// value rounded to the given number of decimals. The sum stays exact.
func NewRounded(decimals int) *Target {
	return &Target{decimals: decimals, hist: make(map[float64]int)}
}

// Round rounds v half away from zero to the given number of decimals.
// Negative decimals leave v unchanged.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Add records value for unit.
func (t *Target) Add(unit domain.CommissionID, value float64) {
	key := Round(value, t.decimals)
	t.size++
	t.sum += value
	t.hist[key]++
	t.min = pushExtreme(t.min, key, unit, func(a, b float64) bool { return a < b })
	t.max = pushExtreme(t.max, key, unit, func(a, b float64) bool { return a > b })
}

func pushExtreme(cur *extreme, value float64, unit domain.CommissionID, better func(a, b float64) bool) *extreme {
	if cur == nil || better(value, cur.value) {
		return &extreme{value: value, units: map[domain.CommissionID]struct{}{unit: {}}}
	}
	if value == cur.value {
		cur.units[unit] = struct{}{}
	}
	return cur
}

// Merge folds other into t. other is left untouched.
func (t *Target) Merge(other *Target) {
	if other == nil {
		return
	}
	t.size += other.size
	t.sum += other.sum
	for k, c := range other.hist {
		t.hist[k] += c
	}
	t.min = mergeExtreme(t.min, other.min, func(a, b float64) bool { return a < b })
	t.max = mergeExtreme(t.max, other.max, func(a, b float64) bool { return a > b })
}

func mergeExtreme(cur, other *extreme, better func(a, b float64) bool) *extreme {
	if other == nil {
		return cur
	}
	if cur == nil || better(other.value, cur.value) {
		return other.clone()
	}
	if other.value == cur.value {
		for u := range other.units {
			cur.units[u] = struct{}{}
		}
	}
	return cur
}

func (e *extreme) clone() *extreme {
	units := make(map[domain.CommissionID]struct{}, len(e.units))
	for u := range e.units {
		units[u] = struct{}{}
	}
	return &extreme{value: e.value, units: units}
}

func (e *extreme) finish() *Extreme {
	if e == nil {
		return nil
	}
	units := make([]domain.CommissionID, 0, len(e.units))
	for u := range e.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return &Extreme{Value: e.value, Units: units}
}

// Size is the number of contributions.
func (t *Target) Size() int { return t.size }

// Sum is the exact sum of contributions.
func (t *Target) Sum() float64 { return t.sum }

// Average is Sum/Size, or 0 for an empty Target.
func (t *Target) Average() float64 {
	if t.size == 0 {
		return 0
	}
	return t.sum / float64(t.size)
}

// Finish converts the running state into a Summary with the histogram sorted
// by value.
func (t *Target) Finish() Summary {
	bins := make([]HistogramBin, 0, len(t.hist))
	for v, c := range t.hist {
		bins = append(bins, HistogramBin{Value: v, Count: c})
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].Value < bins[j].Value })

	return Summary{
		Size:      t.size,
		Sum:       t.sum,
		Average:   t.Average(),
		Min:       t.min.finish(),
		Max:       t.max.finish(),
		Median:    median(bins, t.size),
		Histogram: bins,
	}
}

// median walks the sorted histogram; even sizes average the two middle values.
func median(bins []HistogramBin, size int) float64 {
	if size == 0 {
		return 0
	}
	lo, hi := (size-1)/2, size/2
	var loV, hiV float64
	seen := 0
	for _, b := range bins {
		next := seen + b.Count
		if lo >= seen && lo < next {
			loV = b.Value
		}
		if hi >= seen && hi < next {
			hiV = b.Value
			break
		}
		seen = next
	}
	return (loV + hiV) / 2
}

// MarshalJSON encodes the finished Summary.
func (t *Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Finish())
}

// UnmarshalJSON rebuilds the running state from a Summary. The histogram
// carries every contribution, so a decoded Target finishes identically.
func (t *Target) UnmarshalJSON(data []byte) error {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.decimals = -1
	t.size = s.Size
	t.sum = s.Sum
	t.hist = make(map[float64]int, len(s.Histogram))
	for _, b := range s.Histogram {
		t.hist[b.Value] = b.Count
	}
	t.min = fromExtreme(s.Min)
	t.max = fromExtreme(s.Max)
	return nil
}

func fromExtreme(e *Extreme) *extreme {
	if e == nil {
		return nil
	}
	units := make(map[domain.CommissionID]struct{}, len(e.Units))
	for _, u := range e.Units {
		units[u] = struct{}{}
	}
	return &extreme{value: e.Value, units: units}
}
