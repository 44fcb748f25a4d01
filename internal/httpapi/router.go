// Package httpapi serves a read-only status endpoint for a running ingest.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamevault/internal/governor"
	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/store"
)

// StatsSource reports store row counts.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Handler serves pipeline status.
type Handler struct {
	metrics *metrics.Metrics
	gov     *governor.Governor
	st      StatsSource
	log     zerolog.Logger
}

// NewRouter creates the status router. Any of m, gov and st may be nil; the
// matching endpoint then reports 503.
func NewRouter(log zerolog.Logger, m *metrics.Metrics, gov *governor.Governor, st StatsSource) http.Handler {
	h := &Handler{metrics: m, gov: gov, st: st, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.ready)
	mux.HandleFunc("GET /v1/metrics", h.metricsSnapshot)
	mux.HandleFunc("GET /v1/governor", h.governorUsage)
	mux.HandleFunc("GET /v1/store", h.storeStats)

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready checks that the store answers within two seconds.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.st == nil {
		http.Error(w, "no store", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.st.Stats(ctx); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.metrics.Snapshot())
}

type governorResponse struct {
	InUse governor.Usage `json:"in_use"`
	Size  governor.Usage `json:"size"`
}

func (h *Handler) governorUsage(w http.ResponseWriter, r *http.Request) {
	if h.gov == nil {
		http.Error(w, "governor disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, governorResponse{
		InUse: h.gov.Usage(),
		Size: governor.Usage{
			Files:     h.gov.Files.Size(),
			Downloads: h.gov.Downloads.Size(),
			Workers:   h.gov.Workers.Size(),
		},
	})
}

func (h *Handler) storeStats(w http.ResponseWriter, r *http.Request) {
	if h.st == nil {
		http.Error(w, "no store", http.StatusServiceUnavailable)
		return
	}
	st, err := h.st.Stats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("store stats")
		http.Error(w, "store stats failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
