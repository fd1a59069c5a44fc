package anomaly

import "tally/internal/protocol"

// CheckChecksum runs the ballot conservation check on p and records the
// outcome in p.Analysis. Protocols that do not publish received ballots have
// nothing to check and are left unflagged, and so are aggregates over any
// such precinct: its issued ballots would count against nobody's receipt.
func CheckChecksum(p *protocol.Protocol) *protocol.Checksum {
	if p.Empty || p.Metadata.BallotsReceived == 0 || len(p.UncheckedUIKs) > 0 {
		p.Analysis.Checksum = nil
		p.Analysis.InvalidProtocol = false
		return nil
	}
	m := p.Metadata

	diff := m.BallotsReceived - (m.IssuedEarly + m.IssuedWalkIn + m.IssuedAtHome + m.BallotsDestroyed)
	cs := &protocol.Checksum{Diff: diff}
	switch {
	case diff > 0:
		cs.AttributedTo = "lost"
	case diff < 0:
		cs.AttributedTo = "ignored"
	}
	cs.Unexplained = diff - (m.BallotsLost - m.BallotsIgnored)
	cs.Conserved = m.BallotsValid+m.BallotsInvalid+m.BallotsLost == m.BallotsReceived-m.BallotsDestroyed+m.BallotsIgnored
	cs.Valid = cs.Unexplained == 0 && cs.Conserved

	p.Analysis.Checksum = cs
	p.Analysis.InvalidProtocol = !cs.Valid
	return cs
}
