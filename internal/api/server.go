package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"weft/internal/backend"
)

type server struct {
	client backend.Client
	logger *slog.Logger
}

// NewHandler serves client under /v1. GET /healthz is unauthenticated.
func NewHandler(client backend.Client, token string, logger *slog.Logger) http.Handler {
	s := &server{client: client, logger: nopLogger(logger)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(token))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.enqueueJob)
			r.Get("/", s.listJobs)
			r.Get("/stats", s.jobStats)
			r.Post("/retry-failed", s.retryFailed)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/lease", s.renewLease)
				r.Post("/phase", s.setPhase)
				r.Post("/complete", s.completeJob)
				r.Post("/retry", s.retryJob)
				r.Post("/fail", s.failJob)
				r.Post("/release", s.releaseJob)
			})
		})
		r.Post("/queues/{queue}/claim", s.claimJob)
		r.Post("/workflows/{workflowID}/enqueue", s.enqueueWorkflow)

		r.Post("/metadata", s.createMetadata)
		r.Get("/metadata/{id}", s.getMetadata)
		r.Post("/collections", s.createCollection)
		r.Get("/collections/{id}", s.getCollection)
		r.Get("/content", s.openContent)
		r.Get("/supplementary", s.listSupplementary)
		r.Put("/supplementary", s.putSupplementary)
		r.Get("/supplementary/{key}", s.openSupplementary)
		r.Patch("/attributes", s.setAttributes)
		r.Post("/search/documents", s.indexDocument)
		r.Delete("/search/documents", s.removeDocument)
		r.Post("/search", s.search)

		r.Post("/state/complete", s.completeState)
		r.Put("/state", s.setState)
		r.Get("/state/history", s.stateHistory)

		r.Get("/definitions/{category}", s.listDefinitions)
		r.Get("/definitions/{category}/{key}", s.findDefinition)
		r.Post("/definitions", s.createDefinition)
		r.Put("/definitions/{category}/{key}", s.updateDefinition)
	})
	return r
}

func (s *server) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req backend.EnqueueRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.client.EnqueueJob(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := backend.JobFilter{Queue: strings.TrimSpace(query.Get("queue"))}
	for _, status := range query["status"] {
		if status = strings.TrimSpace(status); status != "" {
			filter.Statuses = append(filter.Statuses, backend.JobStatus(status))
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, badRequest("limit %q is not an integer", raw))
			return
		}
		filter.Limit = limit
	}
	jobs, err := s.client.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*backend.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *server) jobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.client.JobStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) retryFailed(w http.ResponseWriter, r *http.Request) {
	var req RetryFailedRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	count, err := s.client.RetryFailedJobs(r.Context(), req.IDs...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.client.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) claimJob(w http.ResponseWriter, r *http.Request) {
	var req LeaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.client.ClaimJob(r.Context(), chi.URLParam(r, "queue"), req.Owner, req.Lease())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) renewLease(w http.ResponseWriter, r *http.Request) {
	var req LeaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.RenewLease(r.Context(), chi.URLParam(r, "jobID"), req.Owner, req.Lease()))
}

func (s *server) setPhase(w http.ResponseWriter, r *http.Request) {
	var req PhaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.SetJobPhase(r.Context(), chi.URLParam(r, "jobID"), req.Owner, req.Progress))
}

func (s *server) completeJob(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.CompleteJob(r.Context(), chi.URLParam(r, "jobID"), req.Owner))
}

func (s *server) retryJob(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.RetryJob(r.Context(), chi.URLParam(r, "jobID"), req.Owner, req.AvailableAt, req.Reason))
}

func (s *server) failJob(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.FailJob(r.Context(), chi.URLParam(r, "jobID"), req.Owner, req.Reason))
}

func (s *server) releaseJob(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.noContent(w, r, s.client.ReleaseJob(r.Context(), chi.URLParam(r, "jobID"), req.Owner))
}

func (s *server) enqueueWorkflow(w http.ResponseWriter, r *http.Request) {
	var target backend.ContentRef
	if err := decodeBody(r, &target); err != nil {
		s.writeError(w, r, err)
		return
	}
	jobs, err := s.client.EnqueueWorkflow(r.Context(), chi.URLParam(r, "workflowID"), target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*backend.Job{}
	}
	writeJSON(w, http.StatusCreated, jobs)
}

func (s *server) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
