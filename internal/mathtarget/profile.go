package mathtarget

import "tally/pkg/domain"

// ProfileOptions tunes percentage clustering.
type ProfileOptions struct {
	// PercentageDecimals is the rounding applied before clustering percentages.
	PercentageDecimals int
	// RepeatMinUnits is the smallest cluster reported as a repeated percentage.
	RepeatMinUnits int
}

// DefaultProfileOptions clusters percentages at one decimal and reports
// clusters shared by three or more precincts.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{PercentageDecimals: 1, RepeatMinUnits: 3}
}

// Profile is the per-entry statistical profile carried by aggregate
// protocols: how votes and vote share are distributed over the leaf units,
// which places the units gave the entry, and where percentages repeat.
//
// Votes, Percentage and the running buckets accumulate; Places,
// PercentageClusters and RepeatedPercentages are filled by Finish.
type Profile struct {
	Votes      *Target `json:"votes"`
	Percentage *Target `json:"percentage"`

	Places              []Bucket `json:"places"`
	PercentageClusters  []Bucket `json:"percentage_clusters"`
	RepeatedPercentages []Bucket `json:"repeated_percentages"`

	opts     ProfileOptions
	places   *Buckets
	clusters *Buckets
}

// NewProfile returns an empty profile.
func NewProfile(opts ProfileOptions) *Profile {
	return &Profile{
		Votes:      New(),
		Percentage: NewRounded(opts.PercentageDecimals + 1),
		opts:       opts,
		places:     NewBuckets(-1),
		clusters:   NewBuckets(opts.PercentageDecimals),
	}
}

// Observe records one leaf unit's result for the entry.
func (p *Profile) Observe(unit domain.CommissionID, votes int64, percentage, place float64) {
	p.Votes.Add(unit, float64(votes))
	p.Percentage.Add(unit, percentage)
	p.places.Add(place, unit, votes)
	p.clusters.Add(percentage, unit, votes)
}

// Merge folds a child aggregate's profile into p.
func (p *Profile) Merge(other *Profile) {
	if other == nil {
		return
	}
	p.Votes.Merge(other.Votes)
	p.Percentage.Merge(other.Percentage)
	p.places.Merge(other.places)
	p.clusters.Merge(other.clusters)
}

// Finish renders the bucket views; total is the entry's aggregate vote count.
// A decoded profile has no running buckets and is left as is.
func (p *Profile) Finish(total int64) {
	if p.places == nil || p.clusters == nil {
		return
	}
	p.Places = p.places.Finish(total)
	p.PercentageClusters = p.clusters.Finish(total)
	p.RepeatedPercentages = p.clusters.Repeated(total, p.opts.RepeatMinUnits)
}
