// Package pipeline orchestrates one agent search: load context, parse
// intent, embed, retrieve, rank, explain, record. It is the single entry
// point behind both the interactive search endpoint and the weekly batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/logger"
	"github.com/campusmatch/matchagent/internal/metrics"
	"github.com/campusmatch/matchagent/internal/usecase/embedding"
	"github.com/campusmatch/matchagent/internal/usecase/retrieval"
)

// Request is one search invocation.
type Request struct {
	UserID string
	Query  string
	// PreviousQuery marks the request as a refinement of an earlier search
	// in the same session. Empty for fresh searches.
	PreviousQuery string
	Limit         int
	Offset        int
	// ExcludeIDs are candidates the client has already shown this session.
	ExcludeIDs []string
}

// Match is one ranked, explained candidate.
type Match struct {
	Profile      domain.Profile        `json:"profile"`
	Score        domain.ScoreBreakdown `json:"score"`
	MatchReasons []string              `json:"matchReasons"`
	Explanation  domain.Explanation    `json:"explanation"`
}

// Meta carries paging and diagnostics for one run.
type Meta struct {
	TotalFound   int                 `json:"totalFound"`
	HasMore      bool                `json:"hasMore"`
	NextOffset   int                 `json:"nextOffset"`
	SearchMethod domain.SearchMethod `json:"searchMethod"`
	LatencyMs    int64               `json:"latencyMs"`
}

// IntentView is the parsed-intent echo returned to the client.
type IntentView struct {
	SemanticQuery string             `json:"semanticQuery"`
	Vibe          string             `json:"vibe"`
	Traits        []string           `json:"traits"`
	Filters       domain.HardFilters `json:"filters"`
	Confidence    float64            `json:"confidence"`
	IsRefinement  bool               `json:"isRefinement"`
}

// Response is the full agent answer for one search.
type Response struct {
	Matches         []Match    `json:"matches"`
	Commentary      string     `json:"commentary"`
	RefinementHints []string   `json:"refinementHints"`
	Intent          IntentView `json:"intent"`
	Meta            Meta       `json:"meta"`
}

// Service runs the agent pipeline.
type Service struct {
	contexts   ContextProvider
	parser     IntentParser
	embeddings *embedding.Service
	retriever  Retriever
	ranker     Ranker
	explainer  Explainer
	clock      func() time.Time
}

// New wires the pipeline stages together.
func New(
	contexts ContextProvider,
	parser IntentParser,
	embeddings *embedding.Service,
	retriever Retriever,
	ranker Ranker,
	explainer Explainer,
) *Service {
	return &Service{
		contexts:   contexts,
		parser:     parser,
		embeddings: embeddings,
		retriever:  retriever,
		ranker:     ranker,
		explainer:  explainer,
		clock:      time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Run executes the full pipeline for one search request. Failed stages that
// have a degraded path (embedding, explanation) degrade; stages without one
// (intent validation, retrieval persistence) fail the run with the stage
// name attached.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	return s.runMode(ctx, "interactive", req)
}

// RunBatch is Run for the weekly drop worker. Same stages, separate
// metrics mode.
func (s *Service) RunBatch(ctx context.Context, req Request) (*Response, error) {
	return s.runMode(ctx, "batch", req)
}

func (s *Service) runMode(ctx context.Context, mode string, req Request) (*Response, error) {
	started := s.clock()
	log := logger.FromContext(ctx)

	resp, err := s.run(ctx, req, log)

	status := "success"
	if err != nil {
		status = "error"
	} else if resp.Meta.SearchMethod == domain.SearchMethodFilter {
		status = "degraded"
	}
	metrics.PipelineRunsTotal.WithLabelValues(mode, status).Inc()

	if err != nil {
		return nil, err
	}
	resp.Meta.LatencyMs = s.clock().Sub(started).Milliseconds()
	return resp, nil
}

func (s *Service) run(ctx context.Context, req Request, log *zap.Logger) (*Response, error) {
	// Stage: agent context. A missing or unreadable context must not block
	// search, new users have none yet.
	var prefs map[string]float64
	agentCtx, err := s.contexts.Get(ctx, req.UserID)
	if err != nil {
		log.Warn("agent context unavailable, searching without preferences",
			zap.String("user_id", req.UserID), zap.Error(err))
	} else {
		prefs = agentCtx.LearnedPreferences
	}

	// Stage: intent.
	intent, err := s.parseIntent(ctx, req, prefs)
	if err != nil {
		return nil, domain.NewStageError("intent", err)
	}

	// Stage: embedding. Unavailable embeddings degrade to filter search.
	vector := s.embed(ctx, &intent, log)

	// Stage: retrieval.
	retrieved, err := s.timedRetrieve(ctx, req, &intent, vector)
	if err != nil {
		return nil, domain.NewStageError("retrieval", err)
	}

	// Stage: ranking. Pure, cannot fail.
	ranked := s.timedRank(retrieved.Candidates, &intent, prefs)

	// Stage: explanation. Best effort inside the explainer.
	stop := stageTimer("explain")
	s.explainer.Annotate(ctx, &intent, ranked)
	commentary := s.explainer.Commentary(ctx, &intent, ranked)
	stop()

	matches := make([]Match, len(ranked))
	matchedIDs := make([]string, len(ranked))
	for i, r := range ranked {
		matches[i] = Match{
			Profile:      r.Profile,
			Score:        r.Breakdown,
			MatchReasons: r.MatchReasons,
			Explanation:  r.Explanation,
		}
		matchedIDs[i] = r.Profile.ID
	}

	// Stage: record. Fire and forget through the sink.
	s.contexts.RecordQuery(ctx, req.UserID, req.Query, matchedIDs)

	return &Response{
		Matches:         matches,
		Commentary:      commentary,
		RefinementHints: refinementHints(&intent),
		Intent: IntentView{
			SemanticQuery: intent.SemanticQuery(),
			Vibe:          intent.Vibe(),
			Traits:        intent.Traits(),
			Filters:       intent.Filters(),
			Confidence:    intent.Confidence(),
			IsRefinement:  intent.IsRefinement(),
		},
		Meta: Meta{
			TotalFound:   retrieved.TotalFound,
			HasMore:      retrieved.HasMore,
			NextOffset:   retrieved.NextOffset,
			SearchMethod: retrieved.Method,
		},
	}, nil
}

// parseIntent handles the refinement flow: the previous query is parsed
// first so the refinement inherits its filters, most recent winning.
func (s *Service) parseIntent(
	ctx context.Context, req Request, prefs map[string]float64,
) (domain.Intent, error) {
	stop := stageTimer("intent")
	defer stop()

	var prev *domain.Intent
	if req.PreviousQuery != "" {
		p, err := s.parser.Parse(ctx, req.PreviousQuery, nil, prefs)
		if err != nil {
			return domain.Intent{}, fmt.Errorf("parse previous query: %w", err)
		}
		prev = &p
	}
	return s.parser.Parse(ctx, req.Query, prev, prefs)
}

func (s *Service) embed(ctx context.Context, intent *domain.Intent, log *zap.Logger) []float32 {
	stop := stageTimer("embedding")
	defer stop()

	vector, err := s.embeddings.NewRun().EmbedIntent(ctx, intent)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			log.Error("unexpected embedding failure", zap.Error(err))
		} else {
			log.Warn("embedding unavailable, degrading to filter search", zap.Error(err))
		}
		return nil
	}
	return vector
}

func (s *Service) timedRetrieve(
	ctx context.Context, req Request, intent *domain.Intent, vector []float32,
) (retrieval.Result, error) {
	stop := stageTimer("retrieval")
	defer stop()
	return s.retriever.Search(ctx, req.UserID, intent, vector, req.Limit, req.Offset, req.ExcludeIDs)
}

func (s *Service) timedRank(
	candidates []domain.Candidate, intent *domain.Intent, prefs map[string]float64,
) []domain.RankedResult {
	stop := stageTimer("ranking")
	defer stop()
	return s.ranker.Rank(candidates, intent, prefs)
}

func stageTimer(stage string) func() {
	started := time.Now()
	return func() {
		metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	}
}
