package weekly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/events"
	"github.com/campusmatch/matchagent/internal/usecase/pipeline"
)

type mockProfiles struct {
	ids       []string
	err       error
	lastLimit int
}

func (m *mockProfiles) ListEligible(_ context.Context, _ time.Time, limit int) ([]string, error) {
	m.lastLimit = limit
	return m.ids, m.err
}

type mockContexts struct {
	byUser map[string]*domain.AgentContext
}

func (m *mockContexts) Get(_ context.Context, userID string) (*domain.AgentContext, error) {
	if ac, ok := m.byUser[userID]; ok {
		return ac, nil
	}
	return domain.NewAgentContext(userID), nil
}

type mockRunner struct {
	mu          sync.Mutex
	matchCounts map[string]int
	errsByUser  map[string]error
	queries     map[string]string
}

func (m *mockRunner) RunBatch(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queries == nil {
		m.queries = make(map[string]string)
	}
	m.queries[req.UserID] = req.Query

	if err := m.errsByUser[req.UserID]; err != nil {
		return nil, err
	}
	n := m.matchCounts[req.UserID]
	matches := make([]pipeline.Match, n)
	for i := range matches {
		matches[i] = pipeline.Match{
			Profile:     domain.Profile{ID: fmt.Sprintf("%s-m%d", req.UserID, i), Name: "match"},
			Score:       domain.ScoreBreakdown{Total: 0.8},
			Explanation: domain.Explanation{Text: "blurb"},
		}
	}
	return &pipeline.Response{Matches: matches}, nil
}

type mockDrops struct {
	mu    sync.Mutex
	byKey map[string]*domain.WeeklyDrop
	err   error
}

func newMockDrops() *mockDrops {
	return &mockDrops{byKey: make(map[string]*domain.WeeklyDrop)}
}

func (m *mockDrops) Upsert(_ context.Context, d *domain.WeeklyDrop) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.byKey[fmt.Sprintf("%s:%d", d.UserID, d.DropNumber)] = &cp
	return nil
}

func fixedNow() time.Time {
	// A Wednesday. ISO week 11 of 2026.
	return time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
}

func newService(profiles *mockProfiles, contexts *mockContexts, runner *mockRunner, drops *mockDrops) (*Service, *events.SyncSink) {
	sink := events.NewSyncSink(nil)
	svc := New(profiles, contexts, runner, drops, sink, Config{
		Concurrency: 4,
		Timezone:    time.UTC,
	}).WithClock(fixedNow)
	return svc, sink
}

func TestRunDeliversDrops(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1", "u2"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 5, "u2": 7}}
	drops := newMockDrops()
	svc, sink := newService(profiles, &mockContexts{}, runner, drops)

	summary, err := svc.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Processed != 2 || summary.Failed != 0 || summary.EmptyResults != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	wantDrop := domain.DropNumber(fixedNow(), time.UTC)
	if summary.DropNumber != wantDrop {
		t.Fatalf("drop number = %d, want %d", summary.DropNumber, wantDrop)
	}

	d := drops.byKey[fmt.Sprintf("u1:%d", wantDrop)]
	if d == nil {
		t.Fatal("u1 drop not persisted")
	}
	if len(d.Matches) != 5 || len(d.MatchedUserIDs) != 5 {
		t.Fatalf("u1 matches = %d", len(d.Matches))
	}
	if d.Status != domain.DropDelivered {
		t.Fatalf("status = %s", d.Status)
	}
	if want := fixedNow().Add(domain.DropTTL); !d.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", d.ExpiresAt, want)
	}

	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	for _, ev := range evs {
		if ev.Kind != events.KindDropDelivered {
			t.Fatalf("event kind = %s", ev.Kind)
		}
	}
}

func TestRunCapsMatchesAtMax(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 12}}
	drops := newMockDrops()
	svc, _ := newService(profiles, &mockContexts{}, runner, drops)

	if _, err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := drops.byKey[fmt.Sprintf("u1:%d", domain.DropNumber(fixedNow(), time.UTC))]
	if len(d.Matches) != domain.DropMaxMatches {
		t.Fatalf("matches = %d, want %d", len(d.Matches), domain.DropMaxMatches)
	}
	if !domain.ValidMatchCount(len(d.Matches)) {
		t.Fatalf("match count %d violates bounds", len(d.Matches))
	}
}

func TestRunBelowMinimumPublishesNothing(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 2}}
	drops := newMockDrops()
	svc, sink := newService(profiles, &mockContexts{}, runner, drops)

	summary, err := svc.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.EmptyResults != 1 || summary.Processed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(drops.byKey) != 0 {
		t.Fatalf("persisted %d snapshots, want none below the minimum", len(drops.byKey))
	}
	if len(sink.Events()) != 0 {
		t.Fatal("below-minimum results must not trigger notifications")
	}
}

func TestRunUserLimitReachesEligibilityListing(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 3}}
	svc, _ := newService(profiles, &mockContexts{}, runner, newMockDrops())

	if _, err := svc.Run(context.Background(), 25); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if profiles.lastLimit != 25 {
		t.Fatalf("limit passed to listing = %d, want 25", profiles.lastLimit)
	}
}

func TestRunConfiguredExpiry(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 3}}
	drops := newMockDrops()
	sink := events.NewSyncSink(nil)
	svc := New(profiles, &mockContexts{}, runner, drops, sink, Config{
		Concurrency: 1,
		Timezone:    time.UTC,
		Expiry:      72 * time.Hour,
	}).WithClock(fixedNow)

	if _, err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := drops.byKey[fmt.Sprintf("u1:%d", domain.DropNumber(fixedNow(), time.UTC))]
	if want := fixedNow().Add(72 * time.Hour); !d.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", d.ExpiresAt, want)
	}
}

func TestRunIsolatesPerUserFailures(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1", "u2", "u3"}}
	runner := &mockRunner{
		matchCounts: map[string]int{"u1": 4, "u3": 4},
		errsByUser: map[string]error{
			"u2": domain.NewStageError("retrieval", errors.New("index down")),
		},
	}
	drops := newMockDrops()
	svc, _ := newService(profiles, &mockContexts{}, runner, drops)

	summary, err := svc.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].UserID != "u2" {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	if summary.Failures[0].Stage != "retrieval" {
		t.Fatalf("failure stage = %q", summary.Failures[0].Stage)
	}
	wantDrop := domain.DropNumber(fixedNow(), time.UTC)
	if drops.byKey[fmt.Sprintf("u1:%d", wantDrop)] == nil || drops.byKey[fmt.Sprintf("u3:%d", wantDrop)] == nil {
		t.Fatal("healthy users should still get drops")
	}
}

func TestRunRerunSameWeekOverwrites(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1"}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 4}}
	drops := newMockDrops()
	svc, _ := newService(profiles, &mockContexts{}, runner, drops)

	if _, err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	runner.matchCounts["u1"] = 6
	if _, err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(drops.byKey) != 1 {
		t.Fatalf("snapshots = %d, want 1 per user per week", len(drops.byKey))
	}
	d := drops.byKey[fmt.Sprintf("u1:%d", domain.DropNumber(fixedNow(), time.UTC))]
	if len(d.Matches) != 6 {
		t.Fatalf("re-run should overwrite, got %d matches", len(d.Matches))
	}
}

func TestRunBuildsQueryFromLearnedPreferences(t *testing.T) {
	profiles := &mockProfiles{ids: []string{"u1", "u2"}}
	contexts := &mockContexts{byUser: map[string]*domain.AgentContext{
		"u1": {
			UserID:             "u1",
			LearnedPreferences: map[string]float64{"funny": 0.4, "outdoorsy": 0.2, "loud": -0.5},
		},
	}}
	runner := &mockRunner{matchCounts: map[string]int{"u1": 3, "u2": 3}}
	svc, _ := newService(profiles, contexts, runner, newMockDrops())

	if _, err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := runner.queries["u1"]; got != "someone funny, outdoorsy" {
		t.Fatalf("u1 query = %q", got)
	}
	if got := runner.queries["u2"]; got != defaultBatchQuery {
		t.Fatalf("u2 query = %q, want default", got)
	}
}

func TestRunListEligibleFailureAbortsRun(t *testing.T) {
	profiles := &mockProfiles{err: errors.New("index down")}
	svc, _ := newService(profiles, &mockContexts{}, &mockRunner{}, newMockDrops())

	if _, err := svc.Run(context.Background(), 0); err == nil {
		t.Fatal("expected error when eligibility listing fails")
	}
}
