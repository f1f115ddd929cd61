package domain

import "time"

// Weekly drop bounds and lifetime.
const (
	// DropMinMatches is the minimum match count required to publish a drop.
	DropMinMatches = 3
	// DropMaxMatches is the maximum match count per drop.
	DropMaxMatches = 7
	// DropTTL is how long a drop stays live after the batch run.
	DropTTL = 48 * time.Hour
)

// DropStatus is the lifecycle state of a weekly drop.
type DropStatus string

const (
	// DropDelivered means the snapshot was persisted and notification sent.
	DropDelivered DropStatus = "delivered"
	// DropExpired means the drop passed its expiry.
	DropExpired DropStatus = "expired"
)

// DropMatch is one curated match copied into a drop snapshot.
type DropMatch struct {
	UserID       string   `json:"userId"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	MatchReasons []string `json:"matchReasons"`
	Blurb        string   `json:"blurb"`
}

// WeeklyDrop is a persisted, time-boxed batch of curated matches, unique
// per (UserID, DropNumber) and upserted weekly. OpenedAt transitions from
// nil to a timestamp exactly once per snapshot; regenerating the snapshot
// resets it to nil.
type WeeklyDrop struct {
	UserID         string     `json:"userId"`
	DropNumber     int        `json:"dropNumber"`
	MatchedUserIDs []string   `json:"matchedUserIds"`
	Matches        []DropMatch `json:"matchData"`
	Status         DropStatus `json:"status"`
	DeliveredAt    time.Time  `json:"deliveredAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	OpenedAt       *time.Time `json:"openedAt"`
}

// DropNumber derives the weekly snapshot key from t in the given fixed
// timezone, as ISO year*100 + ISO week. Computing it in a fixed zone keeps
// re-runs within the same week on the same key.
func DropNumber(t time.Time, loc *time.Location) int {
	year, week := t.In(loc).ISOWeek()
	return year*100 + week
}

// ValidMatchCount reports whether n satisfies the 0-or-[min,max] invariant.
func ValidMatchCount(n int) bool {
	return n == 0 || (n >= DropMinMatches && n <= DropMaxMatches)
}
