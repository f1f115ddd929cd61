package pipeline

import (
	"context"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/usecase/retrieval"
)

// IntentParser turns free text into a structured intent.
type IntentParser interface {
	Parse(ctx context.Context, query string, prev *domain.Intent, learnedPreferences map[string]float64) (domain.Intent, error)
}

// Retriever fetches one page of candidates.
type Retriever interface {
	Search(ctx context.Context, userID string, intent *domain.Intent, embedding []float32, limit, offset int, excludeIDs []string) (retrieval.Result, error)
}

// Ranker orders candidates deterministically.
type Ranker interface {
	Rank(candidates []domain.Candidate, intent *domain.Intent, learnedPreferences map[string]float64) []domain.RankedResult
}

// Explainer decorates ranked results and summarizes the run. Both methods
// are best effort and never fail the pipeline.
type Explainer interface {
	Annotate(ctx context.Context, intent *domain.Intent, results []domain.RankedResult)
	Commentary(ctx context.Context, intent *domain.Intent, results []domain.RankedResult) string
}

// ContextProvider loads agent contexts and records executed queries.
type ContextProvider interface {
	Get(ctx context.Context, userID string) (*domain.AgentContext, error)
	RecordQuery(ctx context.Context, userID, query string, matchedIDs []string)
}
