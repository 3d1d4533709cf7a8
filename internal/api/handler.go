package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/intent"
	"github.com/nidhogg/agri-assist/internal/metrics"
	"github.com/nidhogg/agri-assist/internal/provider"
	"github.com/nidhogg/agri-assist/internal/workflow"
)

const (
	maxQueryLen = 1000
	maxTopK     = 20
)

// Providers is the generation backend registry the handler reports on.
type Providers interface {
	Status() []provider.ProviderStatus
	Get(id string) (provider.Provider, bool)
	Available() bool
}

// SourceLister lists the knowledge sources available for retrieval.
type SourceLister interface {
	Sources(ctx context.Context) ([]string, error)
}

// EventLog is the per-workflow event history mirrored by the orchestrator.
type EventLog interface {
	Replay(ctx context.Context, workflowID string) ([]workflow.Event, error)
	Subscribe(ctx context.Context, workflowID string) <-chan workflow.Event
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	workflows *workflow.Orchestrator
	providers Providers
	sources   SourceLister
	events    EventLog
	logger    *zap.Logger
}

// NewHandler creates a new API handler. events may be nil when no event
// log is configured.
func NewHandler(workflows *workflow.Orchestrator, providers Providers, sources SourceLister, events EventLog, logger *zap.Logger) *Handler {
	return &Handler{
		workflows: workflows,
		providers: providers,
		sources:   sources,
		events:    events,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/intents", h.listIntents)
		r.Get("/providers", h.listProviders)
		r.Get("/models/{provider}", h.listModels)
		r.Get("/sources", h.listSources)

		r.Post("/query", h.query)
		r.Post("/query/batch", h.queryBatch)

		// Workflow routes
		r.Post("/workflows", h.createWorkflow)
		r.Get("/workflows/{id}", h.workflowStatus)
		r.Get("/workflows/{id}/result", h.workflowResult)
		r.Post("/workflows/{id}/steps/{index}", h.stepWorkflow)
		r.Post("/workflows/{id}/summary", h.summarizeWorkflow)
		r.Get("/workflows/{id}/stream", h.streamWorkflow)
		r.Get("/workflows/{id}/events", h.workflowEvents)
		r.Delete("/workflows/{id}", h.cleanupWorkflow)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !h.providers.Available() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"service":   "agri-assist",
		"providers": len(h.providers.Status()),
	})
}

func (h *Handler) listIntents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, intent.Categories())
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.providers.Status())
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	p, ok := h.providers.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	models, err := p.ListModels(r.Context())
	if err != nil {
		h.logger.Warn("list models", zap.String("provider", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":      id,
		"default_model": p.DefaultModel(),
		"models":        models,
	})
}

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	names, err := h.sources.Sources(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": names, "total": len(names)})
}

type runOptions struct {
	TopK     int    `json:"top_k"`
	Provider string `json:"llm_provider"`
	Model    string `json:"llm_model"`
}

// validate checks the overrides against the registered providers.
func (h *Handler) validate(o runOptions) error {
	if o.TopK < 0 || o.TopK > maxTopK {
		return errors.New("top_k must be between 1 and 20")
	}
	if o.Provider == "" {
		if o.Model != "" {
			return errors.New("llm_model requires llm_provider")
		}
		return nil
	}
	p, ok := h.providers.Get(o.Provider)
	if !ok {
		return errors.New("unknown llm_provider " + o.Provider)
	}
	if o.Model != "" {
		return p.ValidateModel(o.Model)
	}
	return nil
}

func (o runOptions) run() workflow.RunOptions {
	return workflow.RunOptions{TopK: o.TopK, Provider: o.Provider, Model: o.Model}
}

func cleanQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return "", errors.New("query is required")
	case len([]rune(q)) > maxQueryLen:
		return "", errors.New("query must be at most 1000 characters")
	}
	return q, nil
}

// errStatus maps workflow errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrSubtaskIndexInvalid),
		errors.Is(err, workflow.ErrNotDecomposed),
		errors.Is(err, workflow.ErrBatchSize):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrSubtaskOutOfOrder),
		errors.Is(err, workflow.ErrSummaryIncomplete),
		errors.Is(err, workflow.ErrWorkflowTerminal),
		errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
