package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/domain/model"
)

type poolLen int

func (p poolLen) Len() int { return int(p) }

func TestHealthGET(t *testing.T) {
	h := &HealthHandlers{
		Jobs: &fakeJobs{stats: model.JobStats{Queued: 1, Running: 2, Succeeded: 3}},
		Pool: poolLen(4),
	}
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, healthResponse{
		Status: "ok",
		Jobs:   model.JobStats{Queued: 1, Running: 2, Succeeded: 3},
		Pool:   4,
	}, got)
}

func TestHealthHEAD(t *testing.T) {
	h := &HealthHandlers{}
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodHead, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Zero(t, w.Body.Len())
}
