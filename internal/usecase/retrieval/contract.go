package retrieval

import (
	"context"

	"github.com/campusmatch/matchagent/internal/domain"
)

// ProfileStore is the candidate source. Implementations must already
// restrict results to visible, non-deleted profiles.
type ProfileStore interface {
	SearchByVector(
		ctx context.Context, vector []float32, filters domain.HardFilters, k int,
	) ([]domain.Candidate, int, error)

	SearchByFilters(
		ctx context.Context, filters domain.HardFilters, offset, limit int,
	) ([]domain.Candidate, int, error)

	Blocklist(ctx context.Context, userID string) ([]string, error)
}
