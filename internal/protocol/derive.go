package protocol

// Derive fills fields a published leaf protocol may leave blank. It never
// overwrites a published counter.
//
//   - valid ballots default to the sum of entry votes;
//   - ballots in boxes default to valid + invalid, counted as stationary;
//   - when no issuance channel was published, every counted ballot is
//     treated as issued in the premises;
//   - turnout checkpoints get deltas and percentages.
func (p *Protocol) Derive() {
	if p.Empty {
		return
	}
	m := &p.Metadata
	if m.BallotsValid == 0 {
		m.BallotsValid = p.Votes()
	}
	if m.InBoxes() == 0 {
		m.BallotsStationary = m.Counted()
	}
	if m.Issued() == 0 {
		m.IssuedWalkIn = m.InBoxes()
	}
	ComputeDeltas(p.Turnout, m.VotersRegistered)
}

// ComputeDeltas sets each checkpoint's delta from the previous one and its
// percentage of registered voters. Deltas are computed once at leaf level;
// aggregates sum them instead of recomputing.
func ComputeDeltas(cps []Checkpoint, registered int64) {
	var prev int64
	for i := range cps {
		cps[i].Delta = cps[i].Count - prev
		prev = cps[i].Count
	}
	SetCheckpointPercentages(cps, registered)
}

// SetCheckpointPercentages recomputes checkpoint percentages.
func SetCheckpointPercentages(cps []Checkpoint, registered int64) {
	for i := range cps {
		cps[i].Percentage = Percent(cps[i].Count, registered)
	}
}

// Percent returns part/whole*100, or 0 when whole is not positive.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
