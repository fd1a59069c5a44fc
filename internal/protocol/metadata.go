package protocol

// Metadata holds the published counters of a protocol. At aggregate levels
// every field is the sum over the effective child protocols.
type Metadata struct {
	VotersRegistered int64 `json:"voters_registered"`
	VotersAttached   int64 `json:"voters_attached"`
	VotersDetached   int64 `json:"voters_detached"`

	BallotsReceived  int64 `json:"ballots_received"`
	IssuedEarly      int64 `json:"issued_ahead_of_time"`
	IssuedWalkIn     int64 `json:"issued_walk_in"`
	IssuedAtHome     int64 `json:"issued_at_home"`
	BallotsDestroyed int64 `json:"destroyed_count"`

	BallotsPortable   int64 `json:"ballots_portable"`
	BallotsStationary int64 `json:"ballots_stationary"`

	BallotsValid   int64 `json:"valid_count"`
	BallotsInvalid int64 `json:"invalid_count"`
	BallotsLost    int64 `json:"lost_count"`
	BallotsIgnored int64 `json:"ignored_count"`
}

// Issued is the number of ballots handed to voters over every channel.
func (m Metadata) Issued() int64 {
	return m.IssuedEarly + m.IssuedWalkIn + m.IssuedAtHome
}

// InBoxes is the number of ballots found in portable and stationary boxes.
func (m Metadata) InBoxes() int64 {
	return m.BallotsPortable + m.BallotsStationary
}

// Counted is the number of voters whose ballots were counted.
func (m Metadata) Counted() int64 {
	return m.BallotsValid + m.BallotsInvalid
}

// Other is the number of ballots that did not go to any entry.
func (m Metadata) Other() int64 {
	return m.BallotsInvalid + m.BallotsLost
}

// Add sums o into m field by field.
func (m *Metadata) Add(o Metadata) {
	m.VotersRegistered += o.VotersRegistered
	m.VotersAttached += o.VotersAttached
	m.VotersDetached += o.VotersDetached
	m.BallotsReceived += o.BallotsReceived
	m.IssuedEarly += o.IssuedEarly
	m.IssuedWalkIn += o.IssuedWalkIn
	m.IssuedAtHome += o.IssuedAtHome
	m.BallotsDestroyed += o.BallotsDestroyed
	m.BallotsPortable += o.BallotsPortable
	m.BallotsStationary += o.BallotsStationary
	m.BallotsValid += o.BallotsValid
	m.BallotsInvalid += o.BallotsInvalid
	m.BallotsLost += o.BallotsLost
	m.BallotsIgnored += o.BallotsIgnored
}
