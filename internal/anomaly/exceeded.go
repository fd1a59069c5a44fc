package anomaly

import (
	"tally/internal/placement"
	"tally/internal/protocol"
)

const (
	termCounted       = "counted ballots"
	termOtherCounted  = "counted ballots, other race"
	termAttachedExtra = "extra attached voters"
)

// CheckExceeded compares the party-list and personal races run by the same
// commission in one election. A voter receives one ballot per race, so a
// race that counted more ballots than its sibling, beyond what extra attached
// voters explain, has exceeded papers. Both protocols are updated.
func CheckExceeded(a, b *protocol.Protocol) {
	if a == nil || b == nil || a.Empty || b.Empty {
		return
	}
	exceeded(a, b)
	exceeded(b, a)
}

func exceeded(r, o *protocol.Protocol) {
	attachedExtra := r.Metadata.VotersAttached - o.Metadata.VotersAttached
	if attachedExtra < 0 {
		attachedExtra = 0
	}
	surplus := r.Metadata.Counted() - o.Metadata.Counted() - attachedExtra
	if surplus <= 0 {
		ApplyExceeded(r, 0, nil)
		return
	}
	ApplyExceeded(r, surplus, []protocol.FormulaTerm{
		{Label: termCounted, Value: r.Metadata.Counted(), Sign: protocol.SignPlus},
		{Label: termOtherCounted, Value: o.Metadata.Counted(), Sign: protocol.SignMinus},
		{Label: termAttachedExtra, Value: attachedExtra, Sign: protocol.SignMinus},
	})
}

// ApplyExceeded records surplus exceeded papers on p and derives the outcome
// flags from p's current ranking. Aggregates call it with the summed child
// surplus.
func ApplyExceeded(p *protocol.Protocol, surplus int64, formula []protocol.FormulaTerm) {
	a := &p.Analysis
	a.ExceededPapersCount = surplus
	a.ExceededPapersFormula = formula
	a.ExceededPapersStealWinning = false
	a.ExceededPapersProvideExtraPlaces = false
	if surplus <= 0 {
		a.ExceededPapersCount = 0
		a.ExceededPapersFormula = nil
		return
	}
	if len(p.Entries) > 1 && surplus >= placement.FirstPlaceMargin(p.Entries) {
		a.ExceededPapersStealWinning = true
	}
	if p.WinnerCount > 1 {
		if gap := placement.SeatMargin(p.Entries, p.WinnerCount); gap >= 0 && surplus >= gap {
			a.ExceededPapersProvideExtraPlaces = true
		}
	}
}

// SumFormula adds formula terms by label, keeping first-seen order.
func SumFormula(formulas ...[]protocol.FormulaTerm) []protocol.FormulaTerm {
	var out []protocol.FormulaTerm
	pos := make(map[string]int)
	for _, f := range formulas {
		for _, t := range f {
			if i, ok := pos[t.Label]; ok {
				out[i].Value += t.Value
				continue
			}
			pos[t.Label] = len(out)
			out = append(out, t)
		}
	}
	return out
}
