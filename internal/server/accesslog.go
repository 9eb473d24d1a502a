package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/synapse-core/ipgate"
)

type accessEntryKey struct{}

// accessEntry collects details filled in by inner middleware.
type accessEntry struct {
	clientAddr string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// accessLog logs one line per request and counts it in requests.
func accessLog(logger *slog.Logger, requests *prometheus.CounterVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			r = r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry))
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if requests != nil {
				requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			}

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
				"client_addr", entry.clientAddr,
			)
		})
	}
}

// recordClientAddr copies the address resolved by the access filter into the
// access log entry.
func recordClientAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if entry, ok := r.Context().Value(accessEntryKey{}).(*accessEntry); ok {
			if addr, ok := ipgate.ClientAddrFromContext(r.Context()); ok {
				entry.clientAddr = addr.String()
			}
		}
		next.ServeHTTP(w, r)
	})
}
