package report

import (
	"time"

	"github.com/google/uuid"

	"tally/internal/protocol"
	"tally/internal/snapshot"
	"tally/pkg/domain"
)

// SnapshotResponse describes the dataset being served.
type SnapshotResponse struct {
	Version     int                  `json:"version"`
	RunID       uuid.UUID            `json:"run_id"`
	BuiltAt     time.Time            `json:"built_at"`
	Digest      string               `json:"digest"`
	Races       []protocol.Race      `json:"races"`
	Protocols   map[domain.Level]int `json:"protocols"`
	Commissions int                  `json:"commissions"`
}

// RaceResponse lists every protocol of a race at one level.
type RaceResponse struct {
	Level     domain.Level                               `json:"level"`
	Race      domain.RaceKey                             `json:"race"`
	Protocols map[domain.CommissionID]*protocol.Protocol `json:"protocols"`
}

// AnalysisResponse is a commission together with its anomaly summary.
type AnalysisResponse struct {
	Commission *protocol.Commission         `json:"commission"`
	Analysis   *snapshot.CommissionAnalysis `json:"analysis"`
}

// FromDataset summarises ds.
func FromDataset(ds *snapshot.Dataset) SnapshotResponse {
	return SnapshotResponse{
		Version:     ds.Version,
		RunID:       ds.RunID,
		BuiltAt:     ds.BuiltAt,
		Digest:      ds.Digest,
		Races:       ds.Races,
		Protocols:   ds.Counts(),
		Commissions: len(ds.Commissions),
	}
}
