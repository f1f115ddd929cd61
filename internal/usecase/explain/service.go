// Package explain generates per-match blurbs, conversation starters and
// overall result commentary. Generation is best effort: when the language
// model is down or returns garbage the service falls back to templated text
// built from match reasons, and never surfaces an error.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/logger"
)

const explainSystemPrompt = `You write short, warm, specific blurbs for a campus dating app.
For each numbered candidate, write one sentence on why they match the user's search,
plus two conversation starters grounded in the candidate's bio and traits.
Never invent facts that are not in the candidate data.
Respond with JSON only: {"entries":[{"index":0,"explanation":"...","conversationStarters":["...","..."]}]}`

const commentarySystemPrompt = `You are a friendly matchmaking agent for a campus dating app.
In one or two sentences, summarize the search results for the user in a warm, casual tone.
Respond with plain text only.`

// Service decorates ranked results with explanations.
type Service struct {
	llm LLM
}

// New creates an explanation generator.
func New(llm LLM) *Service {
	return &Service{llm: llm}
}

type explainEntry struct {
	Index       int      `json:"index"`
	Explanation string   `json:"explanation"`
	Starters    []string `json:"conversationStarters"`
}

type explainResponse struct {
	Entries []explainEntry `json:"entries"`
}

// Annotate fills the Explanation field of every result in place. Results
// keep their ranked order; the model only decorates, it never reorders.
// A single batched completion covers all results; on any failure every
// result gets a templated fallback instead.
func (s *Service) Annotate(ctx context.Context, intent *domain.Intent, results []domain.RankedResult) {
	if len(results) == 0 {
		return
	}

	entries, err := s.generate(ctx, intent, results)
	if err != nil {
		logger.FromContext(ctx).Warn("explanation generation failed, using templates",
			zap.Error(err))
		for i := range results {
			results[i].Explanation = templateExplanation(&results[i])
		}
		return
	}

	for i := range results {
		e, ok := entries[i]
		if !ok || strings.TrimSpace(e.Explanation) == "" {
			results[i].Explanation = templateExplanation(&results[i])
			continue
		}
		results[i].Explanation = domain.Explanation{
			Text:     strings.TrimSpace(e.Explanation),
			Starters: trimStarters(e.Starters),
		}
	}
}

func (s *Service) generate(ctx context.Context, intent *domain.Intent, results []domain.RankedResult) (map[int]explainEntry, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user searched for: %q\n\nCandidates:\n", intent.RawQuery())
	for i := range results {
		p := &results[i].Profile
		fmt.Fprintf(&sb, "%d. %s, %d, %s at %s. Traits: %s. Bio: %s\n",
			i, p.Name, p.Age, p.Course, p.University,
			strings.Join(p.Traits, ", "), p.Bio)
	}

	raw, err := s.llm.Complete(ctx, explainSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var resp explainResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse explanation response: %w", err)
	}

	byIndex := make(map[int]explainEntry, len(resp.Entries))
	for _, e := range resp.Entries {
		if e.Index >= 0 && e.Index < len(results) {
			byIndex[e.Index] = e
		}
	}
	return byIndex, nil
}

// Commentary produces the one-line agent summary shown above the results.
// Falls back to a generic line when generation fails.
func (s *Service) Commentary(ctx context.Context, intent *domain.Intent, results []domain.RankedResult) string {
	fallback := defaultCommentary(len(results))

	var top string
	if len(results) > 0 {
		top = results[0].Profile.Name
	}
	user := fmt.Sprintf("The user searched for %q and got %d matches.", intent.RawQuery(), len(results))
	if top != "" {
		user += fmt.Sprintf(" The top match is %s.", top)
	}

	text, err := s.llm.Complete(ctx, commentarySystemPrompt, user)
	if err != nil {
		logger.FromContext(ctx).Warn("commentary generation failed, using default",
			zap.Error(err))
		return fallback
	}
	text = strings.TrimSpace(stripFences(text))
	if text == "" {
		return fallback
	}
	return text
}

func defaultCommentary(count int) string {
	switch count {
	case 0:
		return "No matches this time. Try loosening a filter or rewording what you're looking for."
	case 1:
		return "Found 1 match for you. Take a look!"
	default:
		return fmt.Sprintf("Found %d matches for you. Take a look!", count)
	}
}

// templateExplanation builds a serviceable blurb from the ranked match
// reasons when the model is unavailable.
func templateExplanation(r *domain.RankedResult) domain.Explanation {
	text := "Looks like a good fit for what you're searching for."
	if len(r.MatchReasons) > 0 {
		text = fmt.Sprintf("%s stood out: %s.", r.Profile.Name,
			strings.Join(r.MatchReasons, "; "))
	}

	starters := []string{
		fmt.Sprintf("Ask %s about life at %s.", r.Profile.Name, r.Profile.University),
	}
	if len(r.Profile.Traits) > 0 {
		starters = append(starters,
			fmt.Sprintf("They seem %s, ask what they're into lately.", r.Profile.Traits[0]))
	}

	return domain.Explanation{Text: text, Starters: starters}
}

func trimStarters(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
