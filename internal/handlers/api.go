package handlers

import (
	"context"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
)

const defaultPeriod = "7d"

type statsQuery func(ctx context.Context, period string) (any, error)

func (h *Handler) serveStats(query statsQuery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period := r.URL.Query().Get("period")
		if period == "" {
			period = defaultPeriod
		}

		result, err := query(r.Context(), period)
		if err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"path":       r.URL.Path,
				"request_id": requestID(r),
			}).Error("Stats query failed")
			writeError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) Stats() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.Stats(ctx, period)
	})
}

func (h *Handler) Pageviews() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.PageviewsByDay(ctx, period)
	})
}

func (h *Handler) Events() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.EventsByName(ctx, period)
	})
}

func (h *Handler) Funnel() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.Funnel(ctx, period)
	})
}

func (h *Handler) Referrers() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.Referrers(ctx, period)
	})
}

func (h *Handler) Devices() http.HandlerFunc {
	return h.serveStats(func(ctx context.Context, period string) (any, error) {
		return h.stats.Devices(ctx, period)
	})
}

// Dashboard serves the operator page from disk on every request so it can
// be edited without a restart.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	page, err := os.ReadFile(h.dashboardPath)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		if !os.IsNotExist(err) {
			h.log.WithError(err).Warn("Failed to read dashboard")
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<h1>Dashboard not found</h1>"))
		return
	}
	w.Write(page)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.log.WithError(err).Warn("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
