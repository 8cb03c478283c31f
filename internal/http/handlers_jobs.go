package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
)

// JobService is the part of the job manager the handlers use.
type JobService interface {
	Enqueue(req model.JobRequest) string
	Lookup(ctx context.Context, id string) (model.JobRecord, bool, error)
}

// JobHandlers provides HTTP handlers for job submission and status.
type JobHandlers struct {
	Svc      JobService
	Defaults model.ExecutionOptions
	Logger   *slog.Logger

	// NewID and Now are overridable in tests.
	NewID func() string
	Now   func() time.Time
}

type enqueueResponse struct {
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	StatusURL string          `json:"statusUrl"`
}

// CreateJob handles POST /jobs/{kind}. The body is validated for the kind before the job is
// queued; the response is 202 with the URL to poll.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var kind model.JobKind
	if err := kind.UnmarshalText([]byte(r.PathValue("kind"))); err != nil {
		WriteAppError(w, apperrors.ValidationField("kind", err.Error()))
		return
	}

	var in model.EnqueueRequest
	if !DecodeJSON(w, r, &in) {
		return
	}

	req, err := model.NewJobRequest(kind, in, h.newID(), h.now(), h.Defaults)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	id := h.Svc.Enqueue(req)
	h.logger().InfoContext(r.Context(), "job accepted",
		"job_id", id,
		"kind", kind,
		"request_id", RequestIDFromContext(r.Context()),
	)
	WriteJSON(w, http.StatusAccepted, enqueueResponse{
		JobID:     id,
		Status:    model.JobStatusQueued,
		StatusURL: "/jobs/" + id,
	})
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	rec, ok, err := h.Svc.Lookup(r.Context(), id)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "job lookup failed", "job_id", id, "error", err)
		WriteAppError(w, err)
		return
	}
	if !ok {
		WriteAppError(w, apperrors.NotFound("job not found"))
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (h *JobHandlers) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *JobHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
