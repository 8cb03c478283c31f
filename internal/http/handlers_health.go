package httpx

import (
	"net/http"

	"github.com/target/cashier/internal/domain/model"
)

// HealthSource reports the live counters shown on /healthz.
type HealthSource interface {
	Stats() model.JobStats
}

// PoolSizer reports how many browser sessions are pooled.
type PoolSizer interface {
	Len() int
}

type healthResponse struct {
	Status string         `json:"status"`
	Jobs   model.JobStats `json:"jobs"`
	Pool   int            `json:"pool"`
}

// HealthHandlers serves readiness/liveness checks.
type HealthHandlers struct {
	Jobs HealthSource
	Pool PoolSizer // Optional
}

// Health returns 200 with job and pool counters. HEAD gets headers only.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	resp := healthResponse{Status: "ok"}
	if h.Jobs != nil {
		resp.Jobs = h.Jobs.Stats()
	}
	if h.Pool != nil {
		resp.Pool = h.Pool.Len()
	}
	WriteJSON(w, http.StatusOK, resp)
}
