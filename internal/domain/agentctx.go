package domain

import "time"

// Learned preference bounds. Weights are clamped so a long feedback streak
// cannot drift a trait out of range.
const (
	PreferenceWeightMin = -1.0
	PreferenceWeightMax = 1.0
	// DefaultLearningRate is the per-feedback nudge applied to trait weights.
	DefaultLearningRate = 0.1
	// MaxRecentQueries bounds the per-user query history.
	MaxRecentQueries = 20
)

// AgentContext is the persistent per-user learning state: a weighted trait
// map plus recent query history. Created lazily on first use.
type AgentContext struct {
	UserID             string             `json:"userId"`
	LearnedPreferences map[string]float64 `json:"learnedPreferences"`
	RecentQueries      []QueryRecord      `json:"recentQueries"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// QueryRecord is one entry of the bounded query history.
type QueryRecord struct {
	Query      string    `json:"query"`
	MatchedIDs []string  `json:"matchedIds"`
	At         time.Time `json:"at"`
}

// NewAgentContext returns the default-initialized context for a user.
func NewAgentContext(userID string) *AgentContext {
	return &AgentContext{
		UserID:             userID,
		LearnedPreferences: make(map[string]float64),
	}
}

// AppendQuery records a query, evicting the oldest entries past limit.
// limit <= 0 applies the MaxRecentQueries bound, which is also the ceiling
// for any configured limit.
func (c *AgentContext) AppendQuery(rec QueryRecord, limit int) {
	if limit <= 0 || limit > MaxRecentQueries {
		limit = MaxRecentQueries
	}
	c.RecentQueries = append(c.RecentQueries, rec)
	if len(c.RecentQueries) > limit {
		c.RecentQueries = c.RecentQueries[len(c.RecentQueries)-limit:]
	}
}

// Nudge moves a trait weight by delta, clamped to the allowed range.
// Deterministic: the same feedback sequence always yields the same weights.
func (c *AgentContext) Nudge(trait string, delta float64) {
	if c.LearnedPreferences == nil {
		c.LearnedPreferences = make(map[string]float64)
	}
	w := c.LearnedPreferences[trait] + delta
	if w > PreferenceWeightMax {
		w = PreferenceWeightMax
	}
	if w < PreferenceWeightMin {
		w = PreferenceWeightMin
	}
	c.LearnedPreferences[trait] = w
}

// PositiveTraits returns traits with strictly positive learned weight,
// the signal a batch intent is built from.
func (c *AgentContext) PositiveTraits() []string {
	var out []string
	for t, w := range c.LearnedPreferences {
		if w > 0 {
			out = append(out, t)
		}
	}
	return out
}

// FeedbackKind enumerates the feedback signals that drive preference learning.
type FeedbackKind string

const (
	// FeedbackLike nudges the liked candidate's traits upward.
	FeedbackLike FeedbackKind = "like"
	// FeedbackConnect nudges upward like FeedbackLike.
	FeedbackConnect FeedbackKind = "connect"
	// FeedbackPass nudges downward.
	FeedbackPass FeedbackKind = "pass"
)

// IsValid reports whether the kind is a known feedback signal.
func (k FeedbackKind) IsValid() bool {
	switch k {
	case FeedbackLike, FeedbackConnect, FeedbackPass:
		return true
	}
	return false
}
