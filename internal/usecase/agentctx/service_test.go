package agentctx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/events"
)

type mockContexts struct {
	byUser  map[string]*domain.AgentContext
	getErr  error
	saveErr error
	saved   []*domain.AgentContext
}

func newMockContexts() *mockContexts {
	return &mockContexts{byUser: make(map[string]*domain.AgentContext)}
}

func (m *mockContexts) Get(_ context.Context, userID string) (*domain.AgentContext, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if ac, ok := m.byUser[userID]; ok {
		return ac, nil
	}
	return domain.NewAgentContext(userID), nil
}

func (m *mockContexts) Save(_ context.Context, ac *domain.AgentContext) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.byUser[ac.UserID] = ac
	m.saved = append(m.saved, ac)
	return nil
}

type mockProfiles struct {
	byID map[string]*domain.Profile
	err  error
}

func (m *mockProfiles) Get(_ context.Context, id string) (*domain.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newService(contexts *mockContexts, profiles *mockProfiles) (*Service, *events.SyncSink) {
	mux := events.NewMux()
	sink := events.NewSyncSink(mux)
	svc := New(contexts, profiles, sink, 0.1).WithClock(fixedClock())
	mux.Register(events.KindQueryRecorded, events.HandlerFunc(svc.HandleQueryRecorded))
	return svc, sink
}

func TestRecordQueryAppendsHistoryViaSink(t *testing.T) {
	contexts := newMockContexts()
	svc, _ := newService(contexts, &mockProfiles{})

	svc.RecordQuery(context.Background(), "u1", "someone funny", []string{"p1", "p2"})

	ac := contexts.byUser["u1"]
	if ac == nil {
		t.Fatal("expected context saved after query record")
	}
	if len(ac.RecentQueries) != 1 {
		t.Fatalf("history length = %d, want 1", len(ac.RecentQueries))
	}
	rec := ac.RecentQueries[0]
	if rec.Query != "someone funny" {
		t.Fatalf("query = %q", rec.Query)
	}
	if len(rec.MatchedIDs) != 2 || rec.MatchedIDs[0] != "p1" {
		t.Fatalf("matched ids = %v", rec.MatchedIDs)
	}
}

func TestHandleQueryRecordedBoundsHistory(t *testing.T) {
	contexts := newMockContexts()
	svc, _ := newService(contexts, &mockProfiles{})

	for i := 0; i < domain.MaxRecentQueries+5; i++ {
		svc.RecordQuery(context.Background(), "u1", "query", nil)
	}

	if got := len(contexts.byUser["u1"].RecentQueries); got != domain.MaxRecentQueries {
		t.Fatalf("history length = %d, want %d", got, domain.MaxRecentQueries)
	}
}

func TestHandleQueryRecordedConfiguredLimit(t *testing.T) {
	contexts := newMockContexts()
	svc, _ := newService(contexts, &mockProfiles{})
	svc.WithHistoryLimit(5)

	for i := 0; i < 9; i++ {
		svc.RecordQuery(context.Background(), "u1", fmt.Sprintf("query %d", i), nil)
	}

	recs := contexts.byUser["u1"].RecentQueries
	if len(recs) != 5 {
		t.Fatalf("history length = %d, want 5", len(recs))
	}
	if recs[0].Query != "query 4" {
		t.Fatalf("oldest kept query = %q, want %q", recs[0].Query, "query 4")
	}
}

func TestApplyFeedbackLikeNudgesUp(t *testing.T) {
	contexts := newMockContexts()
	profiles := &mockProfiles{byID: map[string]*domain.Profile{
		"p1": {ID: "p1", Traits: []string{"funny", "outdoorsy"}},
	}}
	svc, _ := newService(contexts, profiles)

	if err := svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackLike); err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	prefs := contexts.byUser["u1"].LearnedPreferences
	if math.Abs(prefs["funny"]-0.1) > 1e-9 || math.Abs(prefs["outdoorsy"]-0.1) > 1e-9 {
		t.Fatalf("prefs = %v", prefs)
	}
}

func TestApplyFeedbackPassNudgesDown(t *testing.T) {
	contexts := newMockContexts()
	contexts.byUser["u1"] = &domain.AgentContext{
		UserID:             "u1",
		LearnedPreferences: map[string]float64{"loud": 0.3},
	}
	profiles := &mockProfiles{byID: map[string]*domain.Profile{
		"p1": {ID: "p1", Traits: []string{"loud"}},
	}}
	svc, _ := newService(contexts, profiles)

	if err := svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackPass); err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	if got := contexts.byUser["u1"].LearnedPreferences["loud"]; math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("weight = %v, want 0.2", got)
	}
}

func TestApplyFeedbackClampsWeights(t *testing.T) {
	contexts := newMockContexts()
	profiles := &mockProfiles{byID: map[string]*domain.Profile{
		"p1": {ID: "p1", Traits: []string{"funny"}},
	}}
	svc, _ := newService(contexts, profiles)

	for i := 0; i < 20; i++ {
		if err := svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackConnect); err != nil {
			t.Fatalf("ApplyFeedback: %v", err)
		}
	}

	if got := contexts.byUser["u1"].LearnedPreferences["funny"]; got != domain.PreferenceWeightMax {
		t.Fatalf("weight = %v, want clamp at %v", got, domain.PreferenceWeightMax)
	}
}

func TestApplyFeedbackIsDeterministic(t *testing.T) {
	profiles := &mockProfiles{byID: map[string]*domain.Profile{
		"p1": {ID: "p1", Traits: []string{"funny", "kind"}},
		"p2": {ID: "p2", Traits: []string{"funny", "loud"}},
	}}
	run := func() map[string]float64 {
		contexts := newMockContexts()
		svc, _ := newService(contexts, profiles)
		_ = svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackLike)
		_ = svc.ApplyFeedback(context.Background(), "u1", "p2", domain.FeedbackPass)
		_ = svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackConnect)
		return contexts.byUser["u1"].LearnedPreferences
	}

	first := run()
	second := run()
	for k, v := range first {
		if second[k] != v {
			t.Fatalf("weight %s differs across runs: %v vs %v", k, v, second[k])
		}
	}
}

func TestApplyFeedbackRejectsUnknownKind(t *testing.T) {
	svc, _ := newService(newMockContexts(), &mockProfiles{})

	err := svc.ApplyFeedback(context.Background(), "u1", "p1", domain.FeedbackKind("superlike"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestApplyFeedbackUnknownCandidate(t *testing.T) {
	svc, _ := newService(newMockContexts(), &mockProfiles{byID: map[string]*domain.Profile{}})

	err := svc.ApplyFeedback(context.Background(), "u1", "missing", domain.FeedbackLike)
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}
