package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/app"
)

// NewRouter exposes the attendance core over HTTP. Metrics are served
// from gatherer.
func NewRouter(a *app.App, logger *slog.Logger, gatherer prometheus.Gatherer) *mux.Router {
	h := &Handler{app: a, logger: logger}

	r := mux.NewRouter()
	r.Use(requestLogger(logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/scan", h.Scan).Methods(http.MethodPost)
	r.HandleFunc("/scan/image", h.ScanImage).Methods(http.MethodPost)

	r.HandleFunc("/registry", h.ListRegistry).Methods(http.MethodGet)
	r.HandleFunc("/registry", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/registry/upload", h.UploadRegistry).Methods(http.MethodPost)
	r.HandleFunc("/registry/{id}", h.UpdateRegistry).Methods(http.MethodPut)
	r.HandleFunc("/registry/{id}", h.RemoveRegistry).Methods(http.MethodDelete)

	r.HandleFunc("/attendance", h.ListAttendance).Methods(http.MethodGet)
	r.HandleFunc("/attendance/{key}/{index:[0-9]+}", h.RemoveAttendance).Methods(http.MethodDelete)

	r.HandleFunc("/section", h.GetSection).Methods(http.MethodGet)
	r.HandleFunc("/section", h.SetSection).Methods(http.MethodPut)

	r.HandleFunc("/qr", h.GenerateQR).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start))
		})
	}
}
