// Package agentctx maintains the per-user learning state: bounded query
// history and clamped trait preference weights.
package agentctx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/events"
	"github.com/campusmatch/matchagent/internal/logger"
)

// Service reads and updates agent contexts. Query recording goes through
// the event sink so it never delays a search response; feedback is applied
// synchronously because the caller waits for acknowledgment.
type Service struct {
	contexts     ContextStore
	profiles     ProfileStore
	sink         events.Sink
	learningRate float64
	historyLimit int
	clock        func() time.Time
}

// New creates the agent context service.
func New(contexts ContextStore, profiles ProfileStore, sink events.Sink, learningRate float64) *Service {
	if learningRate <= 0 {
		learningRate = domain.DefaultLearningRate
	}
	return &Service{
		contexts:     contexts,
		profiles:     profiles,
		sink:         sink,
		learningRate: learningRate,
		clock:        time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithHistoryLimit bounds the stored query history. Values outside
// (0, domain.MaxRecentQueries] fall back to the domain bound.
func (s *Service) WithHistoryLimit(limit int) *Service {
	s.historyLimit = limit
	return s
}

// Get loads the user's context, returning a default one for new users.
func (s *Service) Get(ctx context.Context, userID string) (*domain.AgentContext, error) {
	return s.contexts.Get(ctx, userID)
}

// RecordQuery emits a history entry for an executed search. Fire and
// forget: the search response never waits on, or fails because of, this.
func (s *Service) RecordQuery(ctx context.Context, userID, query string, matchedIDs []string) {
	s.sink.Emit(ctx, events.Event{
		Kind:   events.KindQueryRecorded,
		UserID: userID,
		Payload: map[string]any{
			"query":      query,
			"matchedIds": matchedIDs,
		},
	})
}

// HandleQueryRecorded is the sink-side handler that appends the query to
// the stored history. Registered against events.KindQueryRecorded.
func (s *Service) HandleQueryRecorded(ctx context.Context, ev events.Event) error {
	query, _ := ev.Payload["query"].(string)
	if query == "" {
		return fmt.Errorf("query_recorded event without query for user %s", ev.UserID)
	}

	ac, err := s.contexts.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}

	ac.AppendQuery(domain.QueryRecord{
		Query:      query,
		MatchedIDs: matchedIDsFromPayload(ev.Payload),
		At:         s.clock().UTC(),
	}, s.historyLimit)
	ac.UpdatedAt = s.clock().UTC()

	return s.contexts.Save(ctx, ac)
}

// ApplyFeedback nudges the preference weight of every trait the candidate
// exhibits: up for like and connect, down for pass. The nudge size is the
// configured learning rate and weights stay within their clamped range, so
// replaying the same feedback sequence always yields the same weights.
func (s *Service) ApplyFeedback(ctx context.Context, userID, candidateID string, kind domain.FeedbackKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("unknown feedback kind %q: %w", kind, domain.ErrValidation)
	}

	profile, err := s.profiles.Get(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("load candidate %s: %w", candidateID, err)
	}

	ac, err := s.contexts.Get(ctx, userID)
	if err != nil {
		return err
	}

	delta := s.learningRate
	if kind == domain.FeedbackPass {
		delta = -s.learningRate
	}
	for _, trait := range profile.Traits {
		ac.Nudge(trait, delta)
	}
	ac.UpdatedAt = s.clock().UTC()

	if err := s.contexts.Save(ctx, ac); err != nil {
		return err
	}

	logger.FromContext(ctx).Debug("feedback applied",
		zap.String("user_id", userID),
		zap.String("candidate_id", candidateID),
		zap.String("kind", string(kind)),
		zap.Int("traits", len(profile.Traits)))
	return nil
}

func matchedIDsFromPayload(payload map[string]any) []string {
	switch v := payload["matchedIds"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
