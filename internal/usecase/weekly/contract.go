package weekly

import (
	"context"
	"time"

	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/usecase/pipeline"
)

// ProfileLister enumerates users eligible for a drop.
type ProfileLister interface {
	ListEligible(ctx context.Context, activeSince time.Time, limit int) ([]string, error)
}

// ContextProvider loads the learning state a batch intent is built from.
type ContextProvider interface {
	Get(ctx context.Context, userID string) (*domain.AgentContext, error)
}

// Runner executes the match pipeline for one user.
type Runner interface {
	RunBatch(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// DropStore persists drop snapshots.
type DropStore interface {
	Upsert(ctx context.Context, d *domain.WeeklyDrop) error
}
