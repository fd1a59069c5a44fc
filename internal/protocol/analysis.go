package protocol

import "tally/pkg/domain"

// AnomalyKind names a flag the anomaly detector can raise.
type AnomalyKind string

const (
	AnomalyInvalidProtocol     AnomalyKind = "invalid_protocol"
	AnomalyExceededPapers      AnomalyKind = "exceeded_papers"
	AnomalyStealWinning        AnomalyKind = "exceeded_papers_steal_winning"
	AnomalyProvideExtraPlaces  AnomalyKind = "exceeded_papers_provide_extra_places"
	AnomalyStuffing            AnomalyKind = "stuffing"
	AnomalyRepeatedPercentages AnomalyKind = "repeated_percentages"
)

// AnomalyKinds lists every kind in reporting order.
var AnomalyKinds = []AnomalyKind{
	AnomalyInvalidProtocol,
	AnomalyExceededPapers,
	AnomalyStealWinning,
	AnomalyProvideExtraPlaces,
	AnomalyStuffing,
	AnomalyRepeatedPercentages,
}

// Sign is the sign of a formula term.
type Sign string

const (
	SignPlus  Sign = "+"
	SignMinus Sign = "-"
)

// FormulaTerm is one term of an audit formula, rendered in order.
type FormulaTerm struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
	Sign  Sign   `json:"sign"`
}

// Checksum is the outcome of the ballot conservation check.
type Checksum struct {
	// Diff is received − (issued + destroyed).
	Diff int64 `json:"diff"`
	// AttributedTo is "lost" for a positive Diff, "ignored" for a negative one.
	AttributedTo string `json:"attributed_to,omitempty"`
	// Unexplained is the part of Diff that lost and ignored ballots do not cover.
	Unexplained int64 `json:"unexplained"`
	// Conserved reports valid + invalid + lost == received − destroyed + ignored.
	Conserved bool `json:"conserved"`
	Valid     bool `json:"valid"`
}

// StuffingEstimate records an inferred ballot-box padding at a co-located precinct.
type StuffingEstimate struct {
	Entry            EntryKey            `json:"entry"`
	Baseline         domain.CommissionID `json:"baseline"`
	ExcessPercentage float64             `json:"excess_percentage"`
	EstimatedVotes   int64               `json:"estimated_votes"`
}

// Analysis carries anomaly flags attached to a protocol. Flags are metadata
// added in place; the counters of a flagged protocol are never rewritten.
type Analysis struct {
	Checksum        *Checksum `json:"checksum,omitempty"`
	InvalidProtocol bool      `json:"invalid_protocol"`

	ExceededPapersCount              int64         `json:"exceeded_papers_count"`
	ExceededPapersFormula            []FormulaTerm `json:"exceeded_papers_formula,omitempty"`
	ExceededPapersStealWinning       bool          `json:"exceeded_papers_steal_winning"`
	ExceededPapersProvideExtraPlaces bool          `json:"exceeded_papers_provide_extra_places"`

	Stuffing *StuffingEstimate `json:"stuffing,omitempty"`
	// StuffedVotes is the estimated stuffed vote count, summed at aggregate levels.
	StuffedVotes int64 `json:"stuffed_votes"`

	RepeatedPercentages bool `json:"repeated_percentages"`
}

// Kinds returns the kinds flagged on this protocol.
func (a Analysis) Kinds() []AnomalyKind {
	var kinds []AnomalyKind
	if a.InvalidProtocol {
		kinds = append(kinds, AnomalyInvalidProtocol)
	}
	if a.ExceededPapersCount > 0 {
		kinds = append(kinds, AnomalyExceededPapers)
	}
	if a.ExceededPapersStealWinning {
		kinds = append(kinds, AnomalyStealWinning)
	}
	if a.ExceededPapersProvideExtraPlaces {
		kinds = append(kinds, AnomalyProvideExtraPlaces)
	}
	if a.Stuffing != nil || a.StuffedVotes > 0 {
		kinds = append(kinds, AnomalyStuffing)
	}
	if a.RepeatedPercentages {
		kinds = append(kinds, AnomalyRepeatedPercentages)
	}
	return kinds
}
