package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/sdko-org/beacon-analytics/internal/ingest"
)

// TrackPageview always answers with the pixel so the tracked page never sees
// a broken image for a limited or failed beacon.
func (h *Handler) TrackPageview(w http.ResponseWriter, r *http.Request) {
	beacon := ingest.PageviewBeacon{
		ClientAddr:     ingest.ClientAddress(r.Header.Get("X-Forwarded-For"), r.RemoteAddr),
		UserAgent:      r.UserAgent(),
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Path:           r.URL.Query().Get("p"),
	}

	status := http.StatusOK
	if _, err := h.ingest.RecordPageview(r.Context(), beacon); err != nil {
		h.log.WithError(err).WithField("request_id", requestID(r)).Error("Failed to record pageview")
		status = http.StatusInternalServerError
	}
	writePixel(w, status)
}

func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		// Let the service decide: a limited client still gets ok:true.
		body = nil
	}

	_, err = h.ingest.RecordEvent(r.Context(), ingest.EventBeacon{
		ClientAddr: ingest.ClientAddress(r.Header.Get("X-Forwarded-For"), r.RemoteAddr),
		UserAgent:  r.UserAgent(),
		Body:       body,
	})
	switch {
	case errors.Is(err, ingest.ErrInvalidJSON), errors.Is(err, ingest.ErrMissingName):
		writeJSON(w, http.StatusBadRequest, ack{OK: false})
	case err != nil:
		h.log.WithError(err).WithField("request_id", requestID(r)).Error("Failed to record event")
		writeJSON(w, http.StatusInternalServerError, ack{OK: false})
	default:
		writeJSON(w, http.StatusOK, ack{OK: true})
	}
}
