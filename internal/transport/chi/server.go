// Package chi implements the HTTP API: interactive agent search, feedback,
// weekly drop reads, and the internal batch trigger.
package chi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
	agentctxuc "github.com/campusmatch/matchagent/internal/usecase/agentctx"
	healthuc "github.com/campusmatch/matchagent/internal/usecase/health"
	"github.com/campusmatch/matchagent/internal/usecase/pipeline"
	weeklyuc "github.com/campusmatch/matchagent/internal/usecase/weekly"
)

// DropReader serves persisted drop snapshots.
type DropReader interface {
	Get(ctx context.Context, userID string, dropNumber int) (*domain.WeeklyDrop, error)
	Open(ctx context.Context, userID string, dropNumber int) (*domain.WeeklyDrop, error)
}

// Server holds the HTTP handlers and their use case dependencies.
type Server struct {
	pipeline      *pipeline.Service
	feedback      *agentctxuc.Service
	weekly        *weeklyuc.Service
	drops         DropReader
	health        *healthuc.Service
	timezone      *time.Location
	logger        *zap.Logger
	errorHandlers []errorHandler
	clock         func() time.Time
}

// NewServer creates an HTTP API server.
func NewServer(
	pipelineSvc *pipeline.Service,
	feedbackSvc *agentctxuc.Service,
	weeklySvc *weeklyuc.Service,
	drops DropReader,
	healthSvc *healthuc.Service,
	timezone *time.Location,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline: pipelineSvc,
		feedback: feedbackSvc,
		weekly:   weeklySvc,
		drops:    drops,
		health:   healthSvc,
		timezone: timezone,
		logger:   logger,
		clock:    time.Now,
	}
	base := []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrProfileNotFound, http.StatusNotFound, codeProfileNotFound),
		sentinelHandler(domain.ErrDropNotFound, http.StatusNotFound, codeDropNotFound),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeUpstreamUnavailable),
		sentinelHandler(domain.ErrPersistence, http.StatusServiceUnavailable, codeStorageUnavailable),
	}
	s.errorHandlers = append([]errorHandler{stageErrorHandler(base)}, base...)
	return s
}

// WithClock overrides the time source. For tests.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Routes mounts every endpoint on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/agent/search", s.AgentSearch)
		r.Post("/agent/feedback", s.AgentFeedback)
		r.Get("/drops/current", s.CurrentDrop)
		r.Post("/drops/current/open", s.OpenCurrentDrop)
	})

	r.Post("/internal/weekly-drop/run", s.RunWeeklyDrop)
}

// searchRequest is the POST /v1/agent/search body.
type searchRequest struct {
	UserID        string   `json:"userId"`
	Query         string   `json:"query"`
	PreviousQuery string   `json:"previousQuery,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Offset        int      `json:"offset,omitempty"`
	ExcludeIDs    []string `json:"excludeIds,omitempty"`
}

// AgentSearch handles POST /v1/agent/search.
func (s *Server) AgentSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "userId is required")
		return
	}

	resp, err := s.pipeline.Run(r.Context(), pipeline.Request{
		UserID:        req.UserID,
		Query:         req.Query,
		PreviousQuery: req.PreviousQuery,
		Limit:         req.Limit,
		Offset:        req.Offset,
		ExcludeIDs:    req.ExcludeIDs,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// feedbackRequest is the POST /v1/agent/feedback body.
type feedbackRequest struct {
	UserID      string `json:"userId"`
	CandidateID string `json:"candidateId"`
	Kind        string `json:"kind"`
}

// AgentFeedback handles POST /v1/agent/feedback.
func (s *Server) AgentFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.CandidateID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "userId and candidateId are required")
		return
	}

	err := s.feedback.ApplyFeedback(r.Context(), req.UserID, req.CandidateID, domain.FeedbackKind(req.Kind))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// CurrentDrop handles GET /v1/drops/current.
func (s *Server) CurrentDrop(w http.ResponseWriter, r *http.Request) {
	s.serveDrop(w, r, s.drops.Get)
}

// OpenCurrentDrop handles POST /v1/drops/current/open, stamping the
// first-open timestamp.
func (s *Server) OpenCurrentDrop(w http.ResponseWriter, r *http.Request) {
	s.serveDrop(w, r, s.drops.Open)
}

func (s *Server) serveDrop(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(ctx context.Context, userID string, dropNumber int) (*domain.WeeklyDrop, error),
) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "userId is required")
		return
	}

	now := s.clock()
	d, err := fetch(r.Context(), userID, domain.DropNumber(now, s.timezone))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// Expiry is derived at read time, the batch never revisits old keys.
	if now.After(d.ExpiresAt) {
		d.Status = domain.DropExpired
	}

	writeJSON(w, http.StatusOK, d)
}

// weeklyRunRequest is the POST /internal/weekly-drop/run body. The body is
// optional; an absent or empty one runs the full batch.
type weeklyRunRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RunWeeklyDrop handles POST /internal/weekly-drop/run.
func (s *Server) RunWeeklyDrop(w http.ResponseWriter, r *http.Request) {
	var req weeklyRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be non-negative")
		return
	}

	summary, err := s.weekly.Run(r.Context(), req.Limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
