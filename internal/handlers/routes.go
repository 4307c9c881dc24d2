package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sdko-org/beacon-analytics/internal/auth"
	"github.com/sirupsen/logrus"
)

func RegisterRoutes(r *mux.Router, h *Handler, gate *auth.Gate) {
	r.HandleFunc("/t.gif", h.TrackPageview).Methods(http.MethodGet)
	r.HandleFunc("/api/event", h.TrackEvent).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	private := r.NewRoute().Subrouter()
	private.Use(gate.Middleware)
	private.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)
	private.HandleFunc("/api/stats", h.Stats()).Methods(http.MethodGet)
	private.HandleFunc("/api/pageviews", h.Pageviews()).Methods(http.MethodGet)
	private.HandleFunc("/api/events", h.Events()).Methods(http.MethodGet)
	private.HandleFunc("/api/funnel", h.Funnel()).Methods(http.MethodGet)
	private.HandleFunc("/api/referrers", h.Referrers()).Methods(http.MethodGet)
	private.HandleFunc("/api/devices", h.Devices()).Methods(http.MethodGet)
}

// NewRouter wires routes and the middleware stack. CORS sits outside the
// router so preflight requests are answered before method matching.
func NewRouter(logger *logrus.Logger, h *Handler, gate *auth.Gate, origins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger))
	RegisterRoutes(r, h, gate)

	return RecoveryMiddleware(logger)(CORSMiddleware(origins)(r))
}
