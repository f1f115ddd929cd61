// Package weekly runs the batch drop: for every eligible user, execute the
// match pipeline with an intent synthesized from their learned preferences
// and persist the result as a time-boxed drop snapshot.
package weekly

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/events"
	"github.com/campusmatch/matchagent/internal/logger"
	"github.com/campusmatch/matchagent/internal/metrics"
	"github.com/campusmatch/matchagent/internal/usecase/pipeline"
)

// defaultBatchQuery seeds the pipeline for users with no learned
// preferences yet.
const defaultBatchQuery = "someone interesting to meet on campus"

// Config tunes a batch run.
type Config struct {
	// Concurrency bounds the users processed in parallel.
	Concurrency int
	// ActiveWindow is how recently a user must have been active.
	ActiveWindow time.Duration
	// Timezone fixes drop-number computation across re-runs.
	Timezone *time.Location
	// Expiry is how long a published drop stays live.
	Expiry time.Duration
}

// Failure records one user the run could not serve.
type Failure struct {
	UserID string `json:"userId"`
	Stage  string `json:"stage"`
}

// Summary is the batch run report.
type Summary struct {
	RunID        string    `json:"runId"`
	DropNumber   int       `json:"dropNumber"`
	Eligible     int       `json:"eligible"`
	Processed    int       `json:"processed"`
	EmptyResults int       `json:"emptyResults"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	Duration     string    `json:"duration"`
}

// Service orchestrates weekly drops.
type Service struct {
	profiles ProfileLister
	contexts ContextProvider
	runner   Runner
	drops    DropStore
	sink     events.Sink
	cfg      Config
	clock    func() time.Time
}

// New creates the batch service.
func New(profiles ProfileLister, contexts ContextProvider, runner Runner, drops DropStore, sink events.Sink, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 14 * 24 * time.Hour
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = domain.DropTTL
	}
	return &Service{
		profiles: profiles,
		contexts: contexts,
		runner:   runner,
		drops:    drops,
		sink:     sink,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Run executes one batch. userLimit caps the run for partial rollouts and
// manual smoke runs; zero means all eligible users. Users are processed
// concurrently but in isolation: one user's failure never aborts the run,
// it lands in the summary instead. Re-running within the same ISO week
// overwrites the week's snapshots, it never duplicates them.
func (s *Service) Run(ctx context.Context, userLimit int) (*Summary, error) {
	started := s.clock()
	now := started.In(s.cfg.Timezone)
	dropNumber := domain.DropNumber(now, s.cfg.Timezone)
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With(zap.String("run_id", runID))

	userIDs, err := s.profiles.ListEligible(ctx, now.Add(-s.cfg.ActiveWindow), userLimit)
	if err != nil {
		return nil, fmt.Errorf("list eligible users: %w", err)
	}

	log.Info("weekly drop run starting",
		zap.Int("drop_number", dropNumber),
		zap.Int("eligible", len(userIDs)),
		zap.Int("concurrency", s.cfg.Concurrency))

	var (
		mu           sync.Mutex
		processed    int
		emptyResults int
		failures     []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			outcome, err := s.processUser(gctx, userID, now, dropNumber)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stage := domain.StageOf(err)
				failures = append(failures, Failure{UserID: userID, Stage: stage})
				metrics.WeeklyDropUsersTotal.WithLabelValues("failed").Inc()
				log.Warn("weekly drop failed for user",
					zap.String("user_id", userID),
					zap.String("stage", stage),
					zap.Error(err))
			case outcome == outcomeEmpty:
				emptyResults++
				metrics.WeeklyDropUsersTotal.WithLabelValues("empty").Inc()
			default:
				processed++
				metrics.WeeklyDropUsersTotal.WithLabelValues("delivered").Inc()
			}
			// Per-user isolation: never propagate into the group.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].UserID < failures[j].UserID })

	summary := &Summary{
		RunID:        runID,
		DropNumber:   dropNumber,
		Eligible:     len(userIDs),
		Processed:    processed,
		EmptyResults: emptyResults,
		Failed:       len(failures),
		Failures:     failures,
		StartedAt:    started.UTC(),
		Duration:     s.clock().Sub(started).String(),
	}

	log.Info("weekly drop run finished",
		zap.Int("drop_number", summary.DropNumber),
		zap.Int("processed", summary.Processed),
		zap.Int("empty", summary.EmptyResults),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

type userOutcome int

const (
	outcomeDelivered userOutcome = iota
	outcomeEmpty
)

func (s *Service) processUser(ctx context.Context, userID string, now time.Time, dropNumber int) (userOutcome, error) {
	query := defaultBatchQuery
	if ac, err := s.contexts.Get(ctx, userID); err == nil {
		if q := batchQuery(ac); q != "" {
			query = q
		}
	}

	resp, err := s.runner.RunBatch(ctx, pipeline.Request{
		UserID: userID,
		Query:  query,
		Limit:  domain.DropMaxMatches,
	})
	if err != nil {
		return 0, err
	}

	matches := resp.Matches
	if len(matches) > domain.DropMaxMatches {
		matches = matches[:domain.DropMaxMatches]
	}

	// Below the minimum nothing is published: no snapshot, no notification.
	// The user simply has no drop this week.
	if len(matches) < domain.DropMinMatches {
		return outcomeEmpty, nil
	}

	drop := &domain.WeeklyDrop{
		UserID:         userID,
		DropNumber:     dropNumber,
		Status:         domain.DropDelivered,
		DeliveredAt:    now.UTC(),
		ExpiresAt:      now.UTC().Add(s.cfg.Expiry),
		MatchedUserIDs: make([]string, len(matches)),
		Matches:        make([]domain.DropMatch, len(matches)),
	}
	for i, m := range matches {
		drop.MatchedUserIDs[i] = m.Profile.ID
		drop.Matches[i] = domain.DropMatch{
			UserID:       m.Profile.ID,
			Name:         m.Profile.Name,
			Score:        m.Score.Total,
			MatchReasons: m.MatchReasons,
			Blurb:        m.Explanation.Text,
		}
	}

	if err := s.drops.Upsert(ctx, drop); err != nil {
		return 0, domain.NewStageError("persist", err)
	}

	s.sink.Emit(ctx, events.Event{
		Kind:   events.KindDropDelivered,
		UserID: userID,
		Payload: map[string]any{
			"dropNumber": dropNumber,
			"matchCount": len(matches),
		},
	})
	return outcomeDelivered, nil
}

// batchQuery synthesizes the search text from positively weighted traits,
// sorted for determinism.
func batchQuery(ac *domain.AgentContext) string {
	traits := ac.PositiveTraits()
	if len(traits) == 0 {
		return ""
	}
	sort.Strings(traits)
	return "someone " + strings.Join(traits, ", ")
}
