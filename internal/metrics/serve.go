package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs scrapes at debug level; they arrive every few seconds.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Debug("metrics request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Mux serves the collectors on /metrics.
func Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return logRequests(mux)
}

// Serve exposes Mux on addr in the background until the process exits.
func Serve(addr string) {
	go func() {
		err := http.ListenAndServe(addr, Mux())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("metrics server starting", "addr", addr)
}
