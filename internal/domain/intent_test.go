package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewIntentValidation(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"valid", "someone funny", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"at limit", strings.Repeat("a", MaxQueryLength), false},
		{"over limit", strings.Repeat("a", MaxQueryLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIntent(tt.query, "", "", nil, HardFilters{}, 0.9, false)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestNewIntentRefinementExemptFromLengthCap(t *testing.T) {
	composed := strings.Repeat("a", MaxQueryLength) + ", but " + strings.Repeat("b", MaxQueryLength)
	in, err := NewIntent(composed, "", "", nil, HardFilters{}, 0.9, true)
	if err != nil {
		t.Fatalf("composed refinement rejected: %v", err)
	}
	if !in.IsRefinement() {
		t.Error("refinement flag lost")
	}
}

func TestNewIntentDefaults(t *testing.T) {
	in, err := NewIntent("Someone   FUNNY", "", "", nil, HardFilters{}, 1.5, false)
	if err != nil {
		t.Fatalf("NewIntent: %v", err)
	}

	if in.SemanticQuery() != "someone funny" {
		t.Errorf("semantic query = %q, want normalized raw", in.SemanticQuery())
	}
	if in.Vibe() != VibeUnspecified {
		t.Errorf("vibe = %q, want %q", in.Vibe(), VibeUnspecified)
	}
	if in.Confidence() != 1 {
		t.Errorf("confidence = %v, want clamped to 1", in.Confidence())
	}
}

func TestHardFiltersMerge(t *testing.T) {
	prev := HardFilters{MinAge: 20, MaxAge: 25, University: "Stanford", Course: "Biology"}
	override := HardFilters{Course: "History", Gender: "female"}

	got := prev.Merge(override)

	want := HardFilters{MinAge: 20, MaxAge: 25, University: "Stanford", Course: "History", Gender: "female"}
	if got != want {
		t.Fatalf("merge = %+v, want %+v", got, want)
	}
}

func TestHardFiltersMergeEmptyOverrideKeepsAll(t *testing.T) {
	prev := HardFilters{MinAge: 20, University: "Stanford"}
	if got := prev.Merge(HardFilters{}); got != prev {
		t.Fatalf("merge with empty = %+v, want %+v", got, prev)
	}
}

func TestHardFiltersIsEmpty(t *testing.T) {
	if !(HardFilters{}).IsEmpty() {
		t.Error("zero filters should be empty")
	}
	if (HardFilters{MinAge: 18}).IsEmpty() {
		t.Error("filters with min age should not be empty")
	}
}

func TestContentHashStableAcrossRawQueries(t *testing.T) {
	a, _ := NewIntent("find me someone funny", "someone funny", "casual", nil, HardFilters{}, 0.9, false)
	b, _ := NewIntent("FUNNY person please!!", "someone funny", "casual", nil, HardFilters{}, 0.4, true)

	if a.ContentHash() != b.ContentHash() {
		t.Error("same semantic content must share one hash")
	}

	c, _ := NewIntent("find me someone funny", "someone funny", "long-term", nil, HardFilters{}, 0.9, false)
	if a.ContentHash() == c.ContentHash() {
		t.Error("different vibe must change the hash")
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  Someone\t\tREALLY   Funny "); got != "someone really funny" {
		t.Fatalf("normalize = %q", got)
	}
}
