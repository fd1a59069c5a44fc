package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"tally/internal/platform/metrics"
	"tally/internal/protocol"
	"tally/internal/registry"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	pstrings "tally/pkg/platform/strings"
)

// Result is the output of a Build.
type Result struct {
	Index    *protocol.Index
	Registry *registry.Set
	// Races lists every race seen, ordered by election then race id.
	Races []protocol.Race
	// Leaves holds the precinct protocols in input order.
	Leaves []*protocol.Protocol
}

// Builder validates a batch and resolves its entities.
type Builder struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMetrics sets the builder's metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates batch, registers every entity it mentions and produces the
// commission index and leaf protocols. A structural problem aborts the build
// with a validation error naming the offending record.
func (b *Builder) Build(ctx context.Context, batch *Batch) (*Result, error) {
	if batch == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "empty batch")
	}
	run := &build{
		index: protocol.NewIndex(),
		reg:   registry.NewSet(),
		races: make(map[domain.RaceKey]int),
		seen:  make(map[recordKey]struct{}),
	}

	if err := run.commissions(batch.Commissions); err != nil {
		return nil, err
	}
	for i, rec := range batch.Records {
		p, err := run.record(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		b.metrics.IncrementProtocols(p.Empty)
		run.leaves = append(run.leaves, p)
	}
	run.index.Build()

	res := &Result{Index: run.index, Registry: run.reg, Leaves: run.leaves}
	for key, winners := range run.races {
		res.Races = append(res.Races, protocol.Race{Key: key, WinnerCount: winners})
	}
	sort.Slice(res.Races, func(i, j int) bool {
		return res.Races[i].Key.String() < res.Races[j].Key.String()
	})

	if b.logger != nil {
		b.logger.InfoContext(ctx, "batch ingested",
			"commissions", run.index.Len(),
			"protocols", len(run.leaves),
			"races", len(res.Races),
			"candidates", run.reg.Kind(registry.KindCandidate).Len(),
			"addresses", run.reg.Kind(registry.KindAddress).Len(),
		)
	}
	return res, nil
}

type recordKey struct {
	precinct domain.CommissionID
	race     domain.RaceKey
}

type build struct {
	index  *protocol.Index
	reg    *registry.Set
	races  map[domain.RaceKey]int
	seen   map[recordKey]struct{}
	leaves []*protocol.Protocol
}

func (r *build) commissions(raw []RawCommission) error {
	byRef := make(map[domain.CommissionRef]RawCommission, len(raw))
	var city *RawCommission
	for i := range raw {
		c := raw[i]
		if c.ID <= 0 {
			return dErrors.Newf(dErrors.CodeValidation, "commission %d: id must be positive", i)
		}
		switch c.Level {
		case domain.LevelCity:
			if city != nil {
				return dErrors.Newf(dErrors.CodeValidation, "commission %d: second city commission %d", i, c.ID)
			}
			city = &raw[i]
		case domain.LevelTerritorial, domain.LevelPrecinct:
		default:
			return dErrors.Newf(dErrors.CodeValidation, "commission %d: level %q cannot be scraped", c.ID, c.Level)
		}
		ref := domain.CommissionRef{ID: c.ID, Level: c.Level}
		if _, dup := byRef[ref]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "commission %s %d listed twice", c.Level, c.ID)
		}
		byRef[ref] = c
	}
	if city == nil {
		return dErrors.New(dErrors.CodeValidation, "batch has no city commission")
	}
	r.index.Add(&protocol.Commission{ID: city.ID, Level: domain.LevelCity, Name: city.Name})
	cityRef := domain.CommissionRef{ID: city.ID, Level: domain.LevelCity}

	for _, c := range raw {
		if c.Level != domain.LevelTerritorial {
			continue
		}
		if c.ParentID != 0 && c.ParentID != city.ID {
			return dErrors.Newf(dErrors.CodeValidation, "territorial %d: parent %d is not the city commission", c.ID, c.ParentID)
		}
		parent := cityRef
		r.index.Add(&protocol.Commission{ID: c.ID, Level: c.Level, Name: c.Name, Parent: &parent})
		if err := r.members(c); err != nil {
			return err
		}
	}

	for _, c := range raw {
		if c.Level != domain.LevelPrecinct {
			continue
		}
		parentRef := domain.CommissionRef{ID: c.ParentID, Level: domain.LevelTerritorial}
		tik, ok := byRef[parentRef]
		if !ok {
			return dErrors.Newf(dErrors.CodeValidation, "precinct %d: unknown territorial commission %d", c.ID, c.ParentID)
		}
		pc := &protocol.Commission{ID: c.ID, Level: c.Level, Name: c.Name, Parent: &parentRef}
		if err := r.address(pc, c); err != nil {
			return err
		}
		if err := r.district(pc, c, tik); err != nil {
			return err
		}
		r.index.Add(pc)
		if err := r.members(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *build) address(pc *protocol.Commission, c RawCommission) error {
	keys := []string{c.VenueKey, c.Address}
	if len(pstrings.NormalizeKeys(keys)) == 0 {
		return nil
	}
	id, err := r.reg.Upsert(registry.KindAddress, keys, registry.Record{
		Fields: map[string]string{"text": pstrings.CollapseSpaces(c.Address), "district": c.AddressDistrict},
	}, venueOf(c))
	if err != nil {
		return fmt.Errorf("precinct %d address: %w", c.ID, err)
	}
	pc.AddressID = id
	return nil
}

// district groups a precinct under a virtual district commission. The label
// comes from the precinct's address, then its territorial commission's
// address, then the territorial commission's name.
func (r *build) district(pc *protocol.Commission, c, tik RawCommission) error {
	label := pstrings.CollapseSpaces(c.AddressDistrict)
	if label == "" {
		label = pstrings.CollapseSpaces(tik.AddressDistrict)
	}
	if label == "" {
		label = pstrings.CollapseSpaces(tik.Name)
	}
	if label == "" {
		return nil
	}
	id, err := r.reg.Upsert(registry.KindDistrict, []string{label}, registry.Record{
		Fields: map[string]string{"label": pstrings.NormalizeKey(label)},
	}, venueOf(c))
	if err != nil {
		return fmt.Errorf("precinct %d district: %w", c.ID, err)
	}
	did := domain.CommissionID(id)
	ref := domain.CommissionRef{ID: did, Level: domain.LevelDistrict}
	if _, ok := r.index.Get(ref); !ok {
		r.index.Add(&protocol.Commission{ID: did, Level: domain.LevelDistrict, Name: label, DistrictLabel: label})
	}
	pc.District = did
	pc.DistrictLabel = label
	return nil
}

func (r *build) members(c RawCommission) error {
	venue := venueOf(c)
	for _, m := range c.Members {
		name := pstrings.CollapseSpaces(m.Name)
		if name == "" {
			return dErrors.Newf(dErrors.CodeValidation, "%s %d: member without a name", c.Level, c.ID)
		}
		fields := map[string]string{"name": name}
		if m.Role != "" {
			if _, err := r.reg.Upsert(registry.KindRole, []string{m.Role}, registry.Record{
				Fields: map[string]string{"name": pstrings.CollapseSpaces(m.Role)},
			}, venue); err != nil {
				return err
			}
			fields["role"] = pstrings.NormalizeKey(m.Role)
		}
		if m.SponsoredBy != "" {
			if _, err := r.reg.Upsert(registry.KindSponsor, []string{m.SponsoredBy}, registry.Record{
				Fields:   map[string]string{"name": pstrings.CollapseSpaces(m.SponsoredBy)},
				Counters: map[string]int64{"members": 1},
			}, venue); err != nil {
				return err
			}
			fields["sponsored_by"] = pstrings.NormalizeKey(m.SponsoredBy)
		}
		if _, err := r.reg.Upsert(registry.KindMember, []string{name}, registry.Record{Fields: fields}, venue); err != nil {
			return err
		}
	}
	return nil
}

func (r *build) record(rec RawRecord) (*protocol.Protocol, error) {
	ref := domain.CommissionRef{ID: rec.CommissionID, Level: domain.LevelPrecinct}
	if _, ok := r.index.Get(ref); !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown precinct %d", rec.CommissionID)
	}
	if _, err := domain.ParseElectionType(string(rec.Election)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "precinct "+rec.CommissionID.String())
	}
	if rec.District < 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "precinct %d: negative district %d", rec.CommissionID, rec.District)
	}
	key := rec.RaceKey()
	if _, dup := r.seen[recordKey{rec.CommissionID, key}]; dup {
		return nil, dErrors.Newf(dErrors.CodeValidation, "precinct %d: second protocol for race %s", rec.CommissionID, key)
	}
	r.seen[recordKey{rec.CommissionID, key}] = struct{}{}
	if err := checkCounters(rec.Counters); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "precinct "+rec.CommissionID.String())
	}

	winners := rec.WinnerCount
	if winners <= 0 {
		winners = protocol.DefaultWinnerCount(key)
	}
	if known, ok := r.races[key]; ok && known != winners {
		return nil, dErrors.Newf(dErrors.CodeValidation, "race %s: winner count %d, earlier %d", key, winners, known)
	}
	r.races[key] = winners

	p := protocol.New(ref, protocol.Race{Key: key, WinnerCount: winners})
	p.Empty = rec.Empty
	p.Metadata = rec.Counters
	if !rec.Empty && len(rec.Lines) == 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "precinct %d race %s: published protocol without result lines", rec.CommissionID, key)
	}

	venue := domain.Venue{Level: domain.LevelPrecinct, CommissionID: rec.CommissionID}
	for i, line := range rec.Lines {
		entry, err := r.entry(key, line, venue)
		if err != nil {
			return nil, fmt.Errorf("precinct %d race %s line %d: %w", rec.CommissionID, key, i, err)
		}
		if p.Entry(entry.Key) != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "precinct %d race %s: %q listed twice", rec.CommissionID, key, line.Name)
		}
		p.Entries = append(p.Entries, entry)
	}

	for _, cp := range rec.Turnout {
		if cp.Count < 0 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "precinct %d: negative turnout at %s", rec.CommissionID, cp.Label)
		}
		p.Turnout = append(p.Turnout, protocol.Checkpoint{Label: cp.Label, Count: cp.Count})
	}
	p.Derive()
	return p, nil
}

func (r *build) entry(race domain.RaceKey, line RawLine, venue domain.Venue) (*protocol.Entry, error) {
	if line.Votes < 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "negative votes for %q", line.Name)
	}
	party := pstrings.CollapseSpaces(line.Party)
	if race.IsPartyList() {
		if party == "" {
			party = pstrings.CollapseSpaces(line.Name)
		}
		if party == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "party-list line without a party")
		}
		id, err := r.reg.Upsert(registry.KindParty, []string{party}, registry.Record{
			Fields: map[string]string{"name": party},
		}, venue)
		if err != nil {
			return nil, err
		}
		return &protocol.Entry{Key: protocol.PartyKey(id), Name: party, VotesCount: line.Votes}, nil
	}

	name := pstrings.CollapseSpaces(line.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "candidate line without a name")
	}
	fields := map[string]string{"name": name, "race": race.String()}
	if party != "" {
		if _, err := r.reg.Upsert(registry.KindParty, []string{party}, registry.Record{
			Fields: map[string]string{"name": party},
		}, venue); err != nil {
			return nil, err
		}
		fields["party"] = party
	}
	// One person may stand in several races; each candidacy is its own entry.
	id, err := r.reg.Upsert(registry.KindCandidate, []string{race.String() + " " + name}, registry.Record{Fields: fields}, venue)
	if err != nil {
		return nil, err
	}
	return &protocol.Entry{Key: protocol.CandidateKey(id), Name: name, VotesCount: line.Votes}, nil
}

func checkCounters(m protocol.Metadata) error {
	for name, v := range map[string]int64{
		"voters_registered":    m.VotersRegistered,
		"voters_attached":      m.VotersAttached,
		"voters_detached":      m.VotersDetached,
		"ballots_received":     m.BallotsReceived,
		"issued_ahead_of_time": m.IssuedEarly,
		"issued_walk_in":       m.IssuedWalkIn,
		"issued_at_home":       m.IssuedAtHome,
		"destroyed_count":      m.BallotsDestroyed,
		"ballots_portable":     m.BallotsPortable,
		"ballots_stationary":   m.BallotsStationary,
		"valid_count":          m.BallotsValid,
		"invalid_count":        m.BallotsInvalid,
		"lost_count":           m.BallotsLost,
		"ignored_count":        m.BallotsIgnored,
	} {
		if v < 0 {
			return dErrors.Newf(dErrors.CodeValidation, "counter %s is negative", name)
		}
	}
	return nil
}

func venueOf(c RawCommission) domain.Venue {
	return domain.Venue{Level: c.Level, CommissionID: c.ID}
}
