// Package intent turns free-text preference queries into validated,
// structured intents. Provider failures degrade to a keyword-only parse;
// this stage never raises an upstream error to the caller.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
)

// lowConfidence is the extraction confidence threshold below which the
// semantic query falls back to the normalized raw text.
const lowConfidence = 0.3

const systemPrompt = `You extract dating search intents for a campus matching app.
Given a free-text query, respond with ONLY a JSON object:
{"semanticQuery": "<concise semantic description of the person sought>",
 "vibe": "<one word vibe: adventurous|chill|romantic|intellectual|outgoing|creative|unspecified>",
 "traits": ["<personality traits mentioned>"],
 "filters": {"minAge": 0, "maxAge": 0, "university": "", "course": "", "gender": ""},
 "confidence": <0.0-1.0 how confident you are in the extraction>}
Leave filter fields zero/empty unless the query states them explicitly.`

// Service parses queries into intents.
type Service struct {
	llm    LLM
	logger *zap.Logger
}

// New creates an intent parser.
func New(llm LLM, logger *zap.Logger) *Service {
	return &Service{llm: llm, logger: logger}
}

// extraction mirrors the provider's JSON response.
type extraction struct {
	SemanticQuery string  `json:"semanticQuery"`
	Vibe          string  `json:"vibe"`
	Traits        []string `json:"traits"`
	Filters       struct {
		MinAge     int    `json:"minAge"`
		MaxAge     int    `json:"maxAge"`
		University string `json:"university"`
		Course     string `json:"course"`
		Gender     string `json:"gender"`
	} `json:"filters"`
	Confidence float64 `json:"confidence"`
}

// Parse builds an Intent from a query. When prev is non-nil the query is
// treated as a refinement of prev: the texts are concatenated before
// extraction and prev's hard filters are inherited, with the refinement's
// filters winning per field (most-recent-wins).
//
// Provider failures are retried once with backoff, then degrade to a
// keyword-only parse. Only validation problems produce an error.
func (s *Service) Parse(
	ctx context.Context, query string, prev *domain.Intent, learnedPreferences map[string]float64,
) (domain.Intent, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Intent{}, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if len(query) > domain.MaxQueryLength {
		return domain.Intent{}, fmt.Errorf(
			"query too long (max %d chars): %w", domain.MaxQueryLength, domain.ErrValidation)
	}

	effective := query
	isRefinement := prev != nil
	if isRefinement {
		effective = prev.RawQuery() + ", but " + query
	}

	ext, err := s.extract(ctx, effective, learnedPreferences)
	switch {
	case err != nil:
		s.logger.Warn("intent extraction unavailable, using keyword fallback",
			zap.Error(err))
		ext = keywordExtract(effective)
	case ext.Confidence < lowConfidence:
		// Distrust a low-confidence provider extraction; the keyword
		// fallback's vibe is taken literally from the query and stands.
		ext.Vibe = domain.VibeUnspecified
		ext.SemanticQuery = domain.NormalizeQuery(effective)
	}

	filters := extFilters(ext)
	if isRefinement {
		filters = prev.Filters().Merge(filters)
	}

	traits := canonicalTraits(ext.Traits)
	if isRefinement {
		traits = mergeTraits(prev.Traits(), traits)
	}

	return domain.NewIntent(
		effective, ext.SemanticQuery, ext.Vibe, traits, filters, ext.Confidence, isRefinement,
	)
}

// extract calls the provider with one backoff retry.
func (s *Service) extract(
	ctx context.Context, query string, learnedPreferences map[string]float64,
) (extraction, error) {
	user := query
	if hints := topPreferences(learnedPreferences, 5); len(hints) > 0 {
		user += "\n\nKnown preferred traits from past behavior: " + strings.Join(hints, ", ")
	}

	var raw string
	backoff := retry.WithMaxRetries(1, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		raw, callErr = s.llm.Complete(ctx, systemPrompt, user)
		if callErr != nil {
			return retry.RetryableError(callErr)
		}
		return nil
	})
	if err != nil {
		return extraction{}, fmt.Errorf("extract intent: %w", err)
	}

	var ext extraction
	if err := json.Unmarshal([]byte(stripFences(raw)), &ext); err != nil {
		return extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	return ext, nil
}

// keywordExtract builds an extraction from the fixed vocabulary. Used when
// the provider is unavailable; always succeeds.
func keywordExtract(query string) extraction {
	normalized := domain.NormalizeQuery(query)

	var ext extraction
	ext.SemanticQuery = normalized
	ext.Vibe = domain.VibeUnspecified
	ext.Confidence = 0.2

	seen := make(map[string]bool)
	for _, word := range strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.'
	}) {
		if ext.Vibe == domain.VibeUnspecified {
			if v, ok := knownVibes[word]; ok {
				ext.Vibe = v
			}
		}
		if t, ok := knownTraits[word]; ok && !seen[t] {
			seen[t] = true
			ext.Traits = append(ext.Traits, t)
		}
	}
	return ext
}

func extFilters(ext extraction) domain.HardFilters {
	return domain.HardFilters{
		MinAge:     ext.Filters.MinAge,
		MaxAge:     ext.Filters.MaxAge,
		University: ext.Filters.University,
		Course:     ext.Filters.Course,
		Gender:     ext.Filters.Gender,
	}
}

// canonicalTraits lowercases and maps traits through the vocabulary,
// keeping unknown traits as-is.
func canonicalTraits(traits []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range traits {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if canon, ok := knownTraits[t]; ok {
			t = canon
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func mergeTraits(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool)
	for _, t := range base {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// topPreferences returns up to n positively-weighted traits, strongest
// first, ties by name for determinism.
func topPreferences(prefs map[string]float64, n int) []string {
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
	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.trait
	}
	return out
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
