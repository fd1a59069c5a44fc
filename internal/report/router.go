package report

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/pkg/platform/httputil"
	"tally/pkg/platform/middleware/admin"
)

// NewRouter mounts the reporting API, the guarded admin endpoints and the
// metrics endpoint.
func NewRouter(h *Handler, adminKey string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminKey, logger))
		h.RegisterAdmin(r)
	})
	return r
}
