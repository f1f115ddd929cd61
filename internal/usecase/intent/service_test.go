package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
)

type mockLLM struct {
	response string
	err      error
	calls    int
	lastUser string
}

func (m *mockLLM) Complete(_ context.Context, _, user string) (string, error) {
	m.calls++
	m.lastUser = user
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestParse_RejectsEmptyQuery(t *testing.T) {
	svc := New(&mockLLM{}, zap.NewNop())

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := svc.Parse(context.Background(), q, nil, nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Parse(%q): want ErrValidation, got %v", q, err)
		}
	}
}

func TestParse_RejectsOverlongQuery(t *testing.T) {
	svc := New(&mockLLM{}, zap.NewNop())

	_, err := svc.Parse(context.Background(), strings.Repeat("a", domain.MaxQueryLength+1), nil, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestParse_ExtractsStructuredIntent(t *testing.T) {
	llm := &mockLLM{response: `{
		"semanticQuery": "outgoing person who loves hiking",
		"vibe": "adventurous",
		"traits": ["Outgoing", "hiking"],
		"filters": {"minAge": 20, "maxAge": 25, "university": "", "course": "CompSci", "gender": ""},
		"confidence": 0.9
	}`}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "someone outgoing who loves hiking", nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if intent.SemanticQuery() != "outgoing person who loves hiking" {
		t.Errorf("semantic query = %q", intent.SemanticQuery())
	}
	if intent.Vibe() != "adventurous" {
		t.Errorf("vibe = %q", intent.Vibe())
	}
	// Traits are canonicalized through the vocabulary.
	wantTraits := []string{"outgoing", "outdoorsy"}
	if got := intent.Traits(); len(got) != len(wantTraits) || got[0] != wantTraits[0] || got[1] != wantTraits[1] {
		t.Errorf("traits = %v, want %v", got, wantTraits)
	}
	if f := intent.Filters(); f.MinAge != 20 || f.MaxAge != 25 || f.Course != "CompSci" {
		t.Errorf("filters = %+v", f)
	}
	if intent.Confidence() != 0.9 {
		t.Errorf("confidence = %v", intent.Confidence())
	}
	if intent.IsRefinement() {
		t.Error("fresh query marked as refinement")
	}
}

func TestParse_ProviderFailureFallsBackToKeywords(t *testing.T) {
	llm := &mockLLM{err: errors.New("provider down")}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "someone funny and sporty", nil, nil)
	if err != nil {
		t.Fatalf("Parse should degrade, not fail: %v", err)
	}
	if llm.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", llm.calls)
	}
	if intent.Vibe() != domain.VibeUnspecified {
		t.Errorf("vibe = %q, want %q", intent.Vibe(), domain.VibeUnspecified)
	}
	traits := intent.Traits()
	if len(traits) != 2 || traits[0] != "funny" || traits[1] != "sporty" {
		t.Errorf("traits = %v, want [funny sporty]", traits)
	}
	if intent.SemanticQuery() != "someone funny and sporty" {
		t.Errorf("semantic query = %q", intent.SemanticQuery())
	}
}

func TestParse_MalformedResponseFallsBackToKeywords(t *testing.T) {
	llm := &mockLLM{response: "not json at all"}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "a chill gamer", nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if intent.Vibe() != "chill" {
		t.Errorf("vibe = %q, want chill", intent.Vibe())
	}
	if traits := intent.Traits(); len(traits) != 1 || traits[0] != "gamer" {
		t.Errorf("traits = %v, want [gamer]", traits)
	}
}

func TestParse_LowConfidenceUsesNormalizedRawQuery(t *testing.T) {
	llm := &mockLLM{response: `{
		"semanticQuery": "hallucinated description",
		"vibe": "romantic",
		"traits": [],
		"filters": {},
		"confidence": 0.1
	}`}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "  Someone   NICE  ", nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if intent.Vibe() != domain.VibeUnspecified {
		t.Errorf("vibe = %q, want unspecified at low confidence", intent.Vibe())
	}
	if intent.SemanticQuery() != "someone nice" {
		t.Errorf("semantic query = %q, want normalized raw text", intent.SemanticQuery())
	}
}

func TestParse_RefinementConcatenatesAndInheritsFilters(t *testing.T) {
	prev, err := domain.NewIntent(
		"someone sporty", "someone sporty", "outgoing",
		[]string{"sporty"},
		domain.HardFilters{University: "State U", Course: "Biology"},
		0.8, false,
	)
	if err != nil {
		t.Fatalf("NewIntent: %v", err)
	}

	llm := &mockLLM{response: `{
		"semanticQuery": "sporty person who is also funny",
		"vibe": "outgoing",
		"traits": ["funny"],
		"filters": {"course": "History"},
		"confidence": 0.85
	}`}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "make them funny too", &prev, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !intent.IsRefinement() {
		t.Error("refinement flag not set")
	}
	if intent.RawQuery() != "someone sporty, but make them funny too" {
		t.Errorf("raw query = %q", intent.RawQuery())
	}
	f := intent.Filters()
	if f.University != "State U" {
		t.Errorf("university = %q, want inherited State U", f.University)
	}
	if f.Course != "History" {
		t.Errorf("course = %q, want refinement override History", f.Course)
	}
	traits := intent.Traits()
	if len(traits) != 2 || traits[0] != "sporty" || traits[1] != "funny" {
		t.Errorf("traits = %v, want [sporty funny]", traits)
	}
}

func TestParse_LongRefinementWithinPerQueryLimit(t *testing.T) {
	original := "someone " + strings.Repeat("x", 390)
	refinement := "someone " + strings.Repeat("y", 340)
	prev, err := domain.NewIntent(original, "", "", nil, domain.HardFilters{}, 0.8, false)
	if err != nil {
		t.Fatalf("NewIntent: %v", err)
	}

	llm := &mockLLM{err: errors.New("provider down")}
	svc := New(llm, zap.NewNop())

	// Each input is under the cap; only their internal composition exceeds it.
	intent, err := svc.Parse(context.Background(), refinement, &prev, nil)
	if err != nil {
		t.Fatalf("Parse rejected a valid refinement: %v", err)
	}
	if !intent.IsRefinement() {
		t.Error("refinement flag not set")
	}
	if len(intent.RawQuery()) <= domain.MaxQueryLength {
		t.Errorf("composed raw query length = %d, expected it to exceed the per-query cap", len(intent.RawQuery()))
	}
}

func TestParse_LearnedPreferencesReachPrompt(t *testing.T) {
	llm := &mockLLM{response: `{"semanticQuery":"x","vibe":"chill","traits":[],"filters":{},"confidence":0.9}`}
	svc := New(llm, zap.NewNop())

	prefs := map[string]float64{"funny": 0.6, "sporty": 0.3, "gamer": -0.4}
	if _, err := svc.Parse(context.Background(), "anyone fun", nil, prefs); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(llm.lastUser, "funny") || !strings.Contains(llm.lastUser, "sporty") {
		t.Errorf("positive preferences missing from prompt: %q", llm.lastUser)
	}
	if strings.Contains(llm.lastUser, "gamer") {
		t.Errorf("negative preference leaked into prompt: %q", llm.lastUser)
	}
}

func TestParse_StripsCodeFences(t *testing.T) {
	llm := &mockLLM{response: "```json\n{\"semanticQuery\":\"bookish match\",\"vibe\":\"intellectual\",\"traits\":[\"bookish\"],\"filters\":{},\"confidence\":0.8}\n```"}
	svc := New(llm, zap.NewNop())

	intent, err := svc.Parse(context.Background(), "someone bookish", nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if intent.Vibe() != "intellectual" {
		t.Errorf("vibe = %q", intent.Vibe())
	}
	if traits := intent.Traits(); len(traits) != 1 || traits[0] != "intellectual" {
		t.Errorf("traits = %v, want [intellectual]", traits)
	}
}
