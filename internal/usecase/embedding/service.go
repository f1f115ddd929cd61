// Package embedding vectorizes intents. Identical semantic content is
// embedded at most once per pipeline run via a content-hash cache; the
// cross-run store cache sits beneath it as a decorator on the embedder.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusmatch/matchagent/internal/domain"
)

// Service wraps the embedder chain for intent vectorization.
type Service struct {
	embedder domain.Embedder
}

// New creates an embedding service.
func New(embedder domain.Embedder) *Service {
	return &Service{embedder: embedder}
}

// NewRun creates a run-scoped cache. One Run per pipeline invocation.
func (s *Service) NewRun() *Run {
	return &Run{svc: s, cache: make(map[string][]float32)}
}

// Run caches embeddings by intent content hash for the duration of one
// pipeline run.
type Run struct {
	svc   *Service
	mu    sync.Mutex
	cache map[string][]float32
}

// EmbedIntent returns the vector for the intent's semantic content.
// Provider failures surface as domain.ErrEmbeddingUnavailable; the
// retriever is contractually required to degrade to filter-only search on
// that error rather than this layer retrying indefinitely.
func (r *Run) EmbedIntent(ctx context.Context, intent *domain.Intent) ([]float32, error) {
	key := intent.ContentHash()

	r.mu.Lock()
	if vec, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return vec, nil
	}
	r.mu.Unlock()

	result, err := r.svc.embedder.Embed(ctx, intent.SemanticQuery())
	if err != nil {
		return nil, fmt.Errorf("embed intent: %w", err)
	}

	r.mu.Lock()
	r.cache[key] = result.Embedding
	r.mu.Unlock()

	return result.Embedding, nil
}
