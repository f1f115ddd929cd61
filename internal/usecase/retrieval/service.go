// Package retrieval fetches a page of candidates for an intent. Vector
// KNN when an embedding is available, hard-filter-only otherwise; the
// requester, explicit exclusions, and blocked relationships never appear
// in a page.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/metrics"
)

// Result is one retrieved page with its paging metadata.
type Result struct {
	Candidates []domain.Candidate
	Method     domain.SearchMethod
	TotalFound int
	HasMore    bool
	NextOffset int
}

// Service retrieves candidate pages.
type Service struct {
	profiles   ProfileStore
	retrievalK int
	logger     *zap.Logger
}

// New creates a retrieval service. retrievalK is the KNN fan-out floor.
func New(profiles ProfileStore, retrievalK int, logger *zap.Logger) *Service {
	if retrievalK <= 0 {
		retrievalK = 50
	}
	return &Service{profiles: profiles, retrievalK: retrievalK, logger: logger}
}

// Search returns one page of candidates for the intent. embedding may be
// nil, which forces filter-only mode; a failing vector search degrades to
// filter-only instead of failing the request.
func (s *Service) Search(
	ctx context.Context,
	userID string,
	intent *domain.Intent,
	embedding []float32,
	limit, offset int,
	excludeIDs []string,
) (Result, error) {
	if limit <= 0 {
		limit = domain.DefaultLimit
	}
	if limit > domain.MaxLimit {
		limit = domain.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	excluded, err := s.exclusionSet(ctx, userID, excludeIDs)
	if err != nil {
		return Result{}, err
	}

	// Fan-out must cover the requested page after exclusions are dropped.
	k := s.retrievalK
	if need := offset + limit + len(excluded); need > k {
		k = need
	}

	if len(embedding) > 0 {
		res, err := s.searchVector(ctx, intent, embedding, k, limit, offset, excluded)
		if err == nil {
			metrics.SearchMethodTotal.WithLabelValues(string(domain.SearchMethodVector)).Inc()
			return res, nil
		}
		s.logger.Warn("vector search failed, degrading to filter-only",
			zap.String("user_id", userID), zap.Error(err))
	}

	res, err := s.searchFilter(ctx, intent, k, limit, offset, excluded)
	if err != nil {
		return Result{}, fmt.Errorf("filter search: %w", err)
	}
	metrics.SearchMethodTotal.WithLabelValues(string(domain.SearchMethodFilter)).Inc()
	return res, nil
}

func (s *Service) exclusionSet(
	ctx context.Context, userID string, excludeIDs []string,
) (map[string]bool, error) {
	blocked, err := s.profiles.Blocklist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}

	excluded := make(map[string]bool, len(excludeIDs)+len(blocked)+1)
	excluded[userID] = true
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	for _, id := range blocked {
		excluded[id] = true
	}
	return excluded, nil
}

func (s *Service) searchVector(
	ctx context.Context,
	intent *domain.Intent,
	embedding []float32,
	k, limit, offset int,
	excluded map[string]bool,
) (Result, error) {
	candidates, _, err := s.profiles.SearchByVector(ctx, embedding, intent.Filters(), k)
	if err != nil {
		return Result{}, err
	}

	kept := dropExcluded(candidates, excluded)

	// Similarity descending, ties by ascending profile id so repeated
	// calls with the same offset page identically.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].VectorScore != kept[j].VectorScore {
			return kept[i].VectorScore > kept[j].VectorScore
		}
		return kept[i].Profile.ID < kept[j].Profile.ID
	})

	return paginate(kept, limit, offset, domain.SearchMethodVector), nil
}

func (s *Service) searchFilter(
	ctx context.Context,
	intent *domain.Intent,
	k, limit, offset int,
	excluded map[string]bool,
) (Result, error) {
	// Fetch from offset zero: exclusions shift page boundaries, so paging
	// must happen on the post-filter set, not in the store.
	candidates, _, err := s.profiles.SearchByFilters(ctx, intent.Filters(), 0, k)
	if err != nil {
		return Result{}, err
	}

	kept := dropExcluded(candidates, excluded)

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Profile.ID < kept[j].Profile.ID
	})

	return paginate(kept, limit, offset, domain.SearchMethodFilter), nil
}

func dropExcluded(candidates []domain.Candidate, excluded map[string]bool) []domain.Candidate {
	kept := make([]domain.Candidate, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		id := c.Profile.ID
		if id == "" || excluded[id] || seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, c)
	}
	return kept
}

func paginate(kept []domain.Candidate, limit, offset int, method domain.SearchMethod) Result {
	total := len(kept)

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Result{
		Candidates: kept[start:end],
		Method:     method,
		TotalFound: total,
		HasMore:    end < total,
		NextOffset: end,
	}
}
