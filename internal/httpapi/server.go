// Package httpapi exposes the benchmark orchestrator over HTTP.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mwiater/edgebench/internal/benchmark"
)

// maxBodyBytes caps the size of JSON request bodies.
const maxBodyBytes int64 = 1 << 20

// zlog is an optional structured logger used for access logs.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// NewMux builds the control API router. origins lists the CORS origins
// allowed to call it; an empty list disables CORS handling.
func NewMux(svc Service, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/queue", func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Pending()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if items == nil {
			items = []benchmark.Item{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	r.Get("/queue/next", func(w http.ResponseWriter, r *http.Request) {
		it, ok, err := svc.NextItem()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !ok {
			writeServiceError(w, benchmark.ErrQueueExhausted)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": it})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			runs, err := svc.Runs()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if runs == nil {
				runs = []benchmark.RunRecord{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"tests": runs})
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			if !isJSON(r) {
				writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
			var it benchmark.Item
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&it); err != nil {
				if errors.Is(err, io.EOF) {
					writeJSONError(w, http.StatusBadRequest, "request body is empty")
					return
				}
				writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			if err := svc.StartItem(it); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"item": it})
		})

		r.Post("/next", func(w http.ResponseWriter, r *http.Request) {
			it, err := svc.StartNext()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"item": it})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			rec, err := svc.Run(chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeleteRun(chi.URLParam(r, "id")); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Get("/log", func(w http.ResponseWriter, r *http.Request) {
		since := 0
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, "since must be a non-negative integer")
				return
			}
			since = n
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": svc.Log(since)})
	})

	return r
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct != "" && strings.HasPrefix(strings.ToLower(ct), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusConflict {
		runRejectionsTotal.Inc()
	}
	if status == http.StatusInternalServerError && zlog != nil {
		zlog.Error().Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

// writeJSONError writes a JSON error body with the given HTTP status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
		"code":  status,
	})
}
