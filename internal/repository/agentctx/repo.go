// Package agentctx persists per-user agent contexts as JSON documents.
package agentctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campusmatch/matchagent/internal/db"
	"github.com/campusmatch/matchagent/internal/domain"
)

// jsonStore is the consumer interface for agent context persistence.
type jsonStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// Repo stores agent contexts keyed by user id.
type Repo struct {
	store     jsonStore
	keyPrefix string
}

// New creates an agent context repository.
func New(store jsonStore, keyPrefix string) *Repo {
	return &Repo{store: store, keyPrefix: keyPrefix}
}

// Get returns the stored context, or a default-initialized one if the user
// has none yet. Contexts are created lazily on first save.
func (r *Repo) Get(ctx context.Context, userID string) (*domain.AgentContext, error) {
	data, err := r.store.JSONGet(ctx, r.key(userID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.NewAgentContext(userID), nil
		}
		return nil, fmt.Errorf("get agent context %s: %w", userID, err)
	}

	var ac domain.AgentContext
	if err := json.Unmarshal(data, &ac); err != nil {
		return nil, fmt.Errorf("decode agent context %s: %w", userID, err)
	}
	if ac.LearnedPreferences == nil {
		ac.LearnedPreferences = make(map[string]float64)
	}
	return &ac, nil
}

// Save persists the full context document.
func (r *Repo) Save(ctx context.Context, ac *domain.AgentContext) error {
	data, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("encode agent context %s: %w", ac.UserID, err)
	}
	if err := r.store.JSONSet(ctx, r.key(ac.UserID), "$", data); err != nil {
		return fmt.Errorf("save agent context %s: %w: %w", ac.UserID, err, domain.ErrPersistence)
	}
	return nil
}

func (r *Repo) key(userID string) string {
	return r.keyPrefix + "agentctx:" + userID
}
