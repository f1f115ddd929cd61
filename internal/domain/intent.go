package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Query limits for the interactive search path.
const (
	// MaxQueryLength is the maximum allowed free-text query length.
	MaxQueryLength = 700
	// DefaultLimit is the default page size for candidate retrieval.
	DefaultLimit = 10
	// MaxLimit is the maximum page size for candidate retrieval.
	MaxLimit = 50
)

// VibeUnspecified is the fallback vibe when extraction confidence is too low.
const VibeUnspecified = "unspecified"

// HardFilters are non-negotiable attribute constraints extracted from a query.
// Zero values mean "no constraint".
type HardFilters struct {
	MinAge     int
	MaxAge     int
	University string
	Course     string
	Gender     string
}

// IsEmpty reports whether no constraint is set.
func (f HardFilters) IsEmpty() bool {
	return f == HardFilters{}
}

// Merge applies overriding filters on top of f, field by field. Zero fields
// in override inherit from f (most-recent-wins refinement policy).
func (f HardFilters) Merge(override HardFilters) HardFilters {
	out := f
	if override.MinAge > 0 {
		out.MinAge = override.MinAge
	}
	if override.MaxAge > 0 {
		out.MaxAge = override.MaxAge
	}
	if override.University != "" {
		out.University = override.University
	}
	if override.Course != "" {
		out.Course = override.Course
	}
	if override.Gender != "" {
		out.Gender = override.Gender
	}
	return out
}

// Intent is the structured representation of what a user is looking for.
// Immutable once built for a given pipeline run.
type Intent struct {
	rawQuery      string
	semanticQuery string
	vibe          string
	traits        []string
	filters       HardFilters
	confidence    float64
	isRefinement  bool
}

// NewIntent validates and builds an Intent. Confidence is clamped to [0,1].
func NewIntent(
	rawQuery, semanticQuery, vibe string,
	traits []string,
	filters HardFilters,
	confidence float64,
	isRefinement bool,
) (Intent, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return Intent{}, fmt.Errorf("query is required: %w", ErrValidation)
	}
	// The length cap applies to a single user-supplied query. A refinement's
	// raw text is the internal composition of two already-validated queries,
	// so it may legitimately exceed the cap.
	if !isRefinement && len(rawQuery) > MaxQueryLength {
		return Intent{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, ErrValidation)
	}
	if semanticQuery == "" {
		semanticQuery = NormalizeQuery(rawQuery)
	}
	if vibe == "" {
		vibe = VibeUnspecified
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Intent{
		rawQuery:      rawQuery,
		semanticQuery: semanticQuery,
		vibe:          vibe,
		traits:        traits,
		filters:       filters,
		confidence:    confidence,
		isRefinement:  isRefinement,
	}, nil
}

// RawQuery returns the original free-text query.
func (i *Intent) RawQuery() string { return i.rawQuery }

// SemanticQuery returns the normalized semantic search text.
func (i *Intent) SemanticQuery() string { return i.semanticQuery }

// Vibe returns the extracted vibe label.
func (i *Intent) Vibe() string { return i.vibe }

// Traits returns the extracted personality traits.
func (i *Intent) Traits() []string { return i.traits }

// Filters returns the hard attribute constraints.
func (i *Intent) Filters() HardFilters { return i.filters }

// Confidence returns the extraction confidence in [0,1].
func (i *Intent) Confidence() float64 { return i.confidence }

// IsRefinement reports whether the intent was built from a refinement.
func (i *Intent) IsRefinement() bool { return i.isRefinement }

// ContentHash returns a stable hash of the semantic content, used as the
// embedding cache key. Two intents with the same semanticQuery and vibe
// share one embedding.
func (i *Intent) ContentHash() string {
	h := sha256.Sum256([]byte(i.semanticQuery + "\n" + i.vibe))
	return hex.EncodeToString(h[:])
}

// NormalizeQuery lowercases and collapses whitespace in free text.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
