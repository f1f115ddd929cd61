package domain

// MaxMatchReasons caps the contributing signals carried per result.
const MaxMatchReasons = 3

// ScoreBreakdown explains how a candidate's total score was composed.
// Total is a deterministic pure function of the other fields given fixed
// ranking weights.
type ScoreBreakdown struct {
	Vector      float64 `json:"vector"`
	Preference  float64 `json:"preference"`
	FilterMatch bool    `json:"filterMatch"`
	Total       float64 `json:"total"`
}

// RankedResult is a scored candidate with its contributing signals.
// Transient except when copied into a WeeklyDrop snapshot.
type RankedResult struct {
	Profile      Profile
	Breakdown    ScoreBreakdown
	MatchReasons []string
	Explanation  Explanation
}

// Explanation is a per-candidate blurb with conversation starters,
// generated after ranking.
type Explanation struct {
	Text     string   `json:"explanation"`
	Starters []string `json:"conversationStarters"`
}

// RankingWeights tune the score composition. Tunable configuration, not a
// hard contract.
type RankingWeights struct {
	Vector      float64
	Preference  float64
	FilterBonus float64
}

// DefaultRankingWeights returns the production defaults.
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{Vector: 0.6, Preference: 0.3, FilterBonus: 0.1}
}
