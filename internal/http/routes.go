package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/cashier/internal/domain/model"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Jobs interface {
		JobService
		HealthSource
	}
	Pool     PoolSizer              // Optional: reported on /healthz
	Defaults model.ExecutionOptions // Execution options applied when a request omits them
	Logger   *slog.Logger           // Optional
}

// NewRouter creates the API router wrapped in request id, logging and recovery middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()
	jobs := &JobHandlers{Svc: services.Jobs, Defaults: services.Defaults, Logger: logger}
	health := &HealthHandlers{Jobs: services.Jobs, Pool: services.Pool}

	registerJobRoutes(mux, jobs)
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("HEAD /healthz", health.Health)

	return Chain(mux, RequestID(), Logging(logger), Recover(logger))
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /jobs/{kind}", h.CreateJob)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
}
