package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
)

type contextKey string

const requestIDKey contextKey = "request_id"

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytesSent  int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesSent += n
	return n, err
}

// RequestIDMiddleware propagates X-Request-ID, minting one when absent.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// LoggingMiddleware writes one line per request. Client addresses and user
// agents are deliberately left out.
func LoggingMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	logEntry := logger.WithField("component", "http_middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				fields := logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     lrw.statusCode,
					"duration":   time.Since(start),
					"bytes":      lrw.bytesSent,
					"request_id": requestID(r),
				}
				entry := logEntry.WithFields(fields)
				if lrw.statusCode >= http.StatusInternalServerError {
					entry.Warn("Request failed")
					return
				}
				entry.Debug("Request processed")
			}()

			next.ServeHTTP(lrw, r)
		})
	}
}

// CORSMiddleware lets the listed origins send GET and POST beacons with a
// Content-Type header.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)
}

// RecoveryMiddleware turns panics into a 500 and logs them.
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(logger.WithField("component", "recovery")),
		gorillahandlers.PrintRecoveryStack(true),
	)
}
