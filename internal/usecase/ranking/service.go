// Package ranking scores and orders retrieved candidates. Rank is a pure
// function: identical inputs always produce identical ordering and scores.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/campusmatch/matchagent/internal/domain"
)

// Service ranks candidates against an intent and learned preferences.
type Service struct {
	weights domain.RankingWeights
}

// New creates a ranker with the given score weights.
func New(weights domain.RankingWeights) *Service {
	if weights == (domain.RankingWeights{}) {
		weights = domain.DefaultRankingWeights()
	}
	return &Service{weights: weights}
}

// Rank returns candidates sorted descending by total score, ties broken by
// ascending profile id. Hard-filter mismatches are expected to have been
// excluded upstream; FilterMatch here only contributes its bonus.
func (s *Service) Rank(
	candidates []domain.Candidate,
	intent *domain.Intent,
	learnedPreferences map[string]float64,
) []domain.RankedResult {
	results := make([]domain.RankedResult, 0, len(candidates))

	for _, c := range candidates {
		pref := preferenceScore(&c.Profile, learnedPreferences)

		breakdown := domain.ScoreBreakdown{
			Vector:      clamp01(c.VectorScore),
			Preference:  pref,
			FilterMatch: c.FilterMatch,
		}
		breakdown.Total = s.total(breakdown)

		results = append(results, domain.RankedResult{
			Profile:      c.Profile,
			Breakdown:    breakdown,
			MatchReasons: matchReasons(&c, intent, learnedPreferences),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Breakdown.Total != results[j].Breakdown.Total {
			return results[i].Breakdown.Total > results[j].Breakdown.Total
		}
		return results[i].Profile.ID < results[j].Profile.ID
	})

	return results
}

func (s *Service) total(b domain.ScoreBreakdown) float64 {
	total := s.weights.Vector*b.Vector + s.weights.Preference*b.Preference
	if b.FilterMatch {
		total += s.weights.FilterBonus
	}
	return total
}

// preferenceScore is the normalized sum of learned-preference weights for
// traits the candidate exhibits, mapped into [0,1]. A candidate with no
// overlapping traits (or a user with no learned preferences) scores a
// neutral 0.5.
func preferenceScore(p *domain.Profile, prefs map[string]float64) float64 {
	var raw, norm float64
	for _, t := range p.Traits {
		if w, ok := prefs[t]; ok {
			raw += w
			norm += math.Abs(w)
		}
	}
	if norm == 0 {
		return 0.5
	}
	// raw/norm is in [-1,1]; shift to [0,1].
	return clamp01((raw/norm + 1) / 2)
}

// matchReasons picks the top contributing signals for a candidate, at most
// domain.MaxMatchReasons, in a deterministic order.
func matchReasons(
	c *domain.Candidate, intent *domain.Intent, prefs map[string]float64,
) []string {
	type reason struct {
		text   string
		weight float64
	}
	var reasons []reason

	// Traits the intent asked for, in intent order.
	for i, t := range intent.Traits() {
		if c.Profile.HasTrait(t) {
			reasons = append(reasons, reason{
				text:   fmt.Sprintf("matches your ask for someone %s", t),
				weight: 1.0 - float64(i)*0.01,
			})
		}
	}

	// Traits the user has historically liked, strongest first.
	liked := sortedPositiveTraits(prefs)
	for i, t := range liked {
		if c.Profile.HasTrait(t) && !intentHasTrait(intent, t) {
			reasons = append(reasons, reason{
				text:   fmt.Sprintf("%s, like people you've connected with", t),
				weight: 0.8 - float64(i)*0.01,
			})
		}
	}

	if c.VectorScore >= 0.75 {
		reasons = append(reasons, reason{text: "strong overall vibe match", weight: 0.7})
	}

	f := intent.Filters()
	if f.Course != "" && c.Profile.Course == f.Course {
		reasons = append(reasons, reason{text: "studies " + f.Course + " too", weight: 0.6})
	}
	if f.University != "" && c.Profile.University == f.University {
		reasons = append(reasons, reason{text: "same university", weight: 0.5})
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].weight > reasons[j].weight
	})

	if len(reasons) > domain.MaxMatchReasons {
		reasons = reasons[:domain.MaxMatchReasons]
	}

	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.text
	}
	return out
}

func intentHasTrait(intent *domain.Intent, trait string) bool {
	for _, t := range intent.Traits() {
		if t == trait {
			return true
		}
	}
	return false
}

// sortedPositiveTraits orders positively-weighted traits by descending
// weight, ties by name.
func sortedPositiveTraits(prefs map[string]float64) []string {
	type tw struct {
		trait  string
		weight float64
	}
	var items []tw
	for t, w := range prefs {
		if w > 0 {
			items = append(items, tw{t, w})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].weight != items[j].weight {
			return items[i].weight > items[j].weight
		}
		return items[i].trait < items[j].trait
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.trait
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
