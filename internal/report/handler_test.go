package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tally/internal/aggregate"
	"tally/internal/anomaly"
	"tally/internal/ingest"
	"tally/internal/protocol"
	"tally/internal/snapshot"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/middleware/admin"
	"tally/pkg/platform/sentinel"
)

const adminKey = "report-test-key"

type stubSnapshots struct {
	ds  *snapshot.Dataset
	err error
}

func (s *stubSnapshots) Current(context.Context) (*snapshot.Dataset, error) {
	return s.ds, s.err
}

type stubRebuilder struct {
	calls int
	ds    *snapshot.Dataset
	err   error
}

func (s *stubRebuilder) Rebuild(context.Context) (*snapshot.Dataset, error) {
	s.calls++
	return s.ds, s.err
}

func buildDataset(t *testing.T) *snapshot.Dataset {
	t.Helper()
	batch := &ingest.Batch{
		Commissions: []ingest.RawCommission{
			{ID: 1, Level: domain.LevelCity, Name: "City"},
			{ID: 10, Level: domain.LevelTerritorial, ParentID: 1, Name: "TIK Central"},
			{ID: 101, Level: domain.LevelPrecinct, ParentID: 10, Name: "P1"},
			{ID: 102, Level: domain.LevelPrecinct, ParentID: 10, Name: "P2"},
		},
		Records: []ingest.RawRecord{
			{
				CommissionID: 101, Election: domain.ElectionRegional, District: 1,
				Counters: protocol.Metadata{VotersRegistered: 1000, BallotsReceived: 800},
				Lines:    []ingest.RawLine{{Name: "A", Votes: 500}, {Name: "B", Votes: 300}},
			},
			{
				CommissionID: 102, Election: domain.ElectionRegional, District: 1,
				Counters: protocol.Metadata{VotersRegistered: 1000, BallotsReceived: 800},
				Lines:    []ingest.RawLine{{Name: "A", Votes: 400}, {Name: "B", Votes: 400}},
			},
			{
				CommissionID: 101, Election: domain.ElectionMunicipal, Municipality: "north", District: 1,
				Counters: protocol.Metadata{VotersRegistered: 1000, BallotsReceived: 800},
				Lines:    []ingest.RawLine{{Name: "C", Votes: 300}, {Name: "D", Votes: 200}},
			},
		},
	}
	res, err := ingest.NewBuilder().Build(context.Background(), batch)
	if err != nil {
		t.Fatal(err)
	}
	out, err := aggregate.NewPipeline(anomaly.NewDetector(anomaly.DefaultThresholds()), aggregate.WithWorkers(1)).
		Run(context.Background(), res)
	if err != nil {
		t.Fatal(err)
	}
	ds := snapshot.FromRun(res, out, uuid.New(), time.Now())
	ds.Digest = "digest"
	return ds
}

// ===== Report Handler Test Suite =====

type HandlerSuite struct {
	suite.Suite
	ds        *snapshot.Dataset
	snapshots *stubSnapshots
	rebuilder *stubRebuilder
	router    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ds = buildDataset(s.T())
	s.snapshots = &stubSnapshots{ds: s.ds}
	s.rebuilder = &stubRebuilder{ds: s.ds}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = NewRouter(New(s.snapshots, s.rebuilder, logger), adminKey, logger)
}

func (s *HandlerSuite) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *HandlerSuite) TestSnapshot() {
	rec := s.do(http.MethodGet, "/snapshot", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body SnapshotResponse
	s.decode(rec, &body)
	s.Equal(s.ds.RunID, body.RunID)
	s.Equal("digest", body.Digest)
	s.Equal(3, body.Protocols[domain.LevelPrecinct])
	s.Len(body.Races, 2)
}

func (s *HandlerSuite) TestProtocol() {
	rec := s.do(http.MethodGet, "/results/city/regional/1/1", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var p protocol.Protocol
	s.decode(rec, &p)
	s.Equal(domain.CommissionRef{ID: 1, Level: domain.LevelCity}, p.Commission)
	s.Equal(int64(1600), p.Votes())
	s.Len(p.Result.Winners, 1)
}

func (s *HandlerSuite) TestRace() {
	rec := s.do(http.MethodGet, "/results/precinct/regional/1", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body RaceResponse
	s.decode(rec, &body)
	s.Len(body.Protocols, 2)
	s.Contains(body.Protocols, domain.CommissionID(101))
}

func (s *HandlerSuite) TestMunicipalRaceIDIsEscaped() {
	rec := s.do(http.MethodGet, "/results/precinct/municipal/north%2F1/101", "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var p protocol.Protocol
	s.decode(rec, &p)
	s.Equal("north", p.Race.Municipality)
	s.Equal(1, p.Race.District)
}

func (s *HandlerSuite) TestResultErrors() {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown level", target: "/results/planet/regional/1/1", status: http.StatusBadRequest},
		{name: "unknown election", target: "/results/city/galactic/1/1", status: http.StatusBadRequest},
		{name: "bad race id", target: "/results/city/regional/zero/1", status: http.StatusBadRequest},
		{name: "bad commission id", target: "/results/city/regional/1/-4", status: http.StatusBadRequest},
		{name: "unknown commission", target: "/results/city/regional/1/77", status: http.StatusNotFound},
		{name: "unknown race", target: "/results/city/nationwide/list", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodGet, tt.target, "")
			s.Equal(tt.status, rec.Code, rec.Body.String())
		})
	}
}

func (s *HandlerSuite) TestAnalysis() {
	rec := s.do(http.MethodGet, "/analysis/territorial:10", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body AnalysisResponse
	s.decode(rec, &body)
	s.Equal("TIK Central", body.Commission.Name)
	s.Len(body.Analysis.RelatedTo.Children, 2)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/analysis/precinct:999", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/analysis/10", "").Code)
}

func (s *HandlerSuite) TestNoSnapshotYet() {
	s.snapshots.ds, s.snapshots.err = nil, sentinel.ErrNotFound
	rec := s.do(http.MethodGet, "/snapshot", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	s.snapshots.err = sentinel.ErrStale
	rec = s.do(http.MethodGet, "/results/city/regional/1/1", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "stale")

	s.snapshots.err = errors.New("disk on fire")
	rec = s.do(http.MethodGet, "/snapshot", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.NotContains(rec.Body.String(), "disk on fire")
}

func (s *HandlerSuite) TestRebuild() {
	s.Run("requires an admin token", func() {
		rec := s.do(http.MethodPost, "/admin/rebuild", "")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Zero(s.rebuilder.calls)
	})

	token, err := admin.IssueToken(adminKey, "ops", time.Minute)
	s.Require().NoError(err)

	s.Run("runs a rebuild", func() {
		rec := s.do(http.MethodPost, "/admin/rebuild", token)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(1, s.rebuilder.calls)

		var body SnapshotResponse
		s.decode(rec, &body)
		s.Equal(s.ds.RunID, body.RunID)
	})

	s.Run("rebuild failure maps its code", func() {
		s.rebuilder.err = dErrors.New(dErrors.CodeValidation, "duplicate protocol")
		rec := s.do(http.MethodPost, "/admin/rebuild", token)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), "duplicate protocol")
	})

	s.Run("only POST is routed", func() {
		rec := s.do(http.MethodGet, "/admin/rebuild", token)
		s.Equal(http.StatusMethodNotAllowed, rec.Code)
	})
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	rec := s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
}
