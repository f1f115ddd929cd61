package intent

// Fixed vibe/trait vocabulary used by the keyword-only fallback when the
// text-understanding provider is unavailable, and by refinement hints.

// knownVibes maps keyword → vibe label.
var knownVibes = map[string]string{
	"adventurous":  "adventurous",
	"adventure":    "adventurous",
	"spontaneous":  "adventurous",
	"chill":        "chill",
	"relaxed":      "chill",
	"laid-back":    "chill",
	"romantic":     "romantic",
	"serious":      "romantic",
	"intellectual": "intellectual",
	"deep":         "intellectual",
	"nerdy":        "intellectual",
	"outgoing":     "outgoing",
	"social":       "outgoing",
	"party":        "outgoing",
	"creative":     "creative",
	"artsy":        "creative",
	"artistic":     "creative",
}

// knownTraits maps keyword → canonical trait.
var knownTraits = map[string]string{
	"outgoing":     "outgoing",
	"extroverted":  "outgoing",
	"social":       "outgoing",
	"spontaneous":  "spontaneous",
	"adventurous":  "adventurous",
	"sporty":       "sporty",
	"athletic":     "sporty",
	"fitness":      "sporty",
	"gym":          "sporty",
	"creative":     "creative",
	"artistic":     "creative",
	"musical":      "musical",
	"music":        "musical",
	"funny":        "funny",
	"humor":        "funny",
	"witty":        "funny",
	"intellectual": "intellectual",
	"bookish":      "intellectual",
	"reading":      "intellectual",
	"ambitious":    "ambitious",
	"driven":       "ambitious",
	"foodie":       "foodie",
	"cooking":      "foodie",
	"gamer":        "gamer",
	"gaming":       "gamer",
	"outdoorsy":    "outdoorsy",
	"hiking":       "outdoorsy",
	"travel":       "outdoorsy",
	"introverted":  "introverted",
	"quiet":        "introverted",
	"calm":         "introverted",
}

// hintTraits are the traits refinement hints are drawn from, in a fixed
// order so hint output is deterministic.
var hintTraits = []string{
	"outgoing", "spontaneous", "sporty", "creative",
	"funny", "intellectual", "ambitious", "outdoorsy",
}
