package agentctx

import (
	"context"

	"github.com/campusmatch/matchagent/internal/domain"
)

// ContextStore persists per-user agent contexts.
type ContextStore interface {
	Get(ctx context.Context, userID string) (*domain.AgentContext, error)
	Save(ctx context.Context, ac *domain.AgentContext) error
}

// ProfileStore looks up candidate profiles for feedback attribution.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*domain.Profile, error)
}
