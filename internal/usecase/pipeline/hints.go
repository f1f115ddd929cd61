package pipeline

import (
	"fmt"

	"github.com/campusmatch/matchagent/internal/domain"
)

// maxRefinementHints caps the suggestions attached to a response.
const maxRefinementHints = 3

// hintCatalog is the pool refinement hints are drawn from, in a fixed order
// so the same intent always yields the same hints. Each entry is suppressed
// once the intent already covers its slot.
var hintCatalog = []struct {
	text string
	// satisfied reports whether the intent already covers this suggestion.
	satisfied func(in *domain.Intent) bool
}{
	{
		text:      "narrow by course, e.g. \"studying biology\"",
		satisfied: func(in *domain.Intent) bool { return in.Filters().Course != "" },
	},
	{
		text:      "add an age range, e.g. \"between 20 and 24\"",
		satisfied: func(in *domain.Intent) bool { return in.Filters().MinAge > 0 || in.Filters().MaxAge > 0 },
	},
	{
		text:      "mention a vibe, e.g. \"something casual\" or \"long-term\"",
		satisfied: func(in *domain.Intent) bool { return in.Vibe() != domain.VibeUnspecified },
	},
	{
		text:      "describe their energy, e.g. \"outgoing\" or \"more introverted\"",
		satisfied: func(in *domain.Intent) bool { return hasAnyTrait(in, "outgoing", "introverted", "spontaneous") },
	},
	{
		text:      "mention shared interests, e.g. \"into hiking\" or \"creative type\"",
		satisfied: func(in *domain.Intent) bool { return hasAnyTrait(in, "outdoorsy", "creative", "sporty", "intellectual") },
	},
}

// refinementHints suggests ways to sharpen the search, skipping anything
// the intent already specifies.
func refinementHints(in *domain.Intent) []string {
	out := make([]string, 0, maxRefinementHints)
	for _, h := range hintCatalog {
		if h.satisfied(in) {
			continue
		}
		out = append(out, fmt.Sprintf("You could %s.", h.text))
		if len(out) == maxRefinementHints {
			break
		}
	}
	return out
}

func hasAnyTrait(in *domain.Intent, traits ...string) bool {
	for _, want := range traits {
		for _, t := range in.Traits() {
			if t == want {
				return true
			}
		}
	}
	return false
}
