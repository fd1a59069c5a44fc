// Package report serves the published dataset over HTTP.
package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tally/internal/snapshot"
	"tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/admin"
	"tally/pkg/platform/sentinel"
)

// Snapshots yields the dataset to serve.
type Snapshots interface {
	Current(ctx context.Context) (*snapshot.Dataset, error)
}

// Rebuilder produces and publishes a fresh dataset.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*snapshot.Dataset, error)
}

// Handler wires the reporting endpoints to the snapshot service.
type Handler struct {
	snapshots Snapshots
	rebuilder Rebuilder
	logger    *slog.Logger
}

// New constructs a report handler with its dependencies.
func New(snapshots Snapshots, rebuilder Rebuilder, logger *slog.Logger) *Handler {
	return &Handler{
		snapshots: snapshots,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

// Register mounts the read endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/snapshot", h.HandleSnapshot)
	r.Get("/results/{level}/{election}/{race}", h.HandleRace)
	r.Get("/results/{level}/{election}/{race}/{commission}", h.HandleProtocol)
	r.Get("/analysis/{commission}", h.HandleAnalysis)
}

// RegisterAdmin mounts the operator endpoints on an already guarded router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rebuild", h.HandleRebuild)
}

// HandleSnapshot handles GET /snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.current(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDataset(ds))
}

// HandleRace handles GET /results/{level}/{election}/{race}.
func (h *Handler) HandleRace(w http.ResponseWriter, r *http.Request) {
	level, race, err := parseRace(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ds, ok := h.current(w, r)
	if !ok {
		return
	}
	protocols := ds.Race(level, race)
	if protocols == nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "no %s results for race %s", level, race))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RaceResponse{Level: level, Race: race, Protocols: protocols})
}

// HandleProtocol handles GET /results/{level}/{election}/{race}/{commission}.
func (h *Handler) HandleProtocol(w http.ResponseWriter, r *http.Request) {
	level, race, err := parseRace(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := domain.ParseCommissionID(chi.URLParam(r, "commission"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ds, ok := h.current(w, r)
	if !ok {
		return
	}
	p := ds.Protocol(level, race, id)
	if p == nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "no protocol for %s %d in race %s", level, id, race))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleAnalysis handles GET /analysis/{commission}, where commission is
// "<level>:<id>".
func (h *Handler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	ref, err := domain.ParseCommissionRef(chi.URLParam(r, "commission"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ds, ok := h.current(w, r)
	if !ok {
		return
	}
	analysis := ds.AnalysisFor(ref)
	if analysis == nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown commission %s", ref))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AnalysisResponse{
		Commission: ds.Commission(ref),
		Analysis:   analysis,
	})
}

// HandleRebuild handles POST /admin/rebuild.
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	if h.rebuilder == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "rebuild is not configured"))
		return
	}
	ds, err := h.rebuilder.Rebuild(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "rebuild request failed",
			"request_id", middleware.GetReqID(ctx),
			"operator", admin.Operator(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "rebuild request served",
		"request_id", middleware.GetReqID(ctx),
		"operator", admin.Operator(ctx),
		"run_id", ds.RunID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromDataset(ds))
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) (*snapshot.Dataset, bool) {
	ds, err := h.snapshots.Current(r.Context())
	switch {
	case err == nil:
		return ds, true
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "no snapshot published yet"))
	case errors.Is(err, sentinel.ErrStale):
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "snapshot is stale, rebuild required"))
	default:
		h.logger.ErrorContext(r.Context(), "snapshot unavailable",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load snapshot"))
	}
	return nil, false
}

// parseRace reads the level, election and race path parameters. Race ids of
// municipal races contain a slash and arrive escaped as %2F.
func parseRace(r *http.Request) (domain.Level, domain.RaceKey, error) {
	level, err := domain.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		return "", domain.RaceKey{}, err
	}
	election, err := domain.ParseElectionType(chi.URLParam(r, "election"))
	if err != nil {
		return "", domain.RaceKey{}, err
	}
	raw, err := url.PathUnescape(chi.URLParam(r, "race"))
	if err != nil {
		return "", domain.RaceKey{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid race id")
	}
	race, err := domain.ParseRaceKey(election, raw)
	if err != nil {
		return "", domain.RaceKey{}, err
	}
	return level, race, nil
}
