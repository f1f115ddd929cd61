// Package drop persists weekly drop snapshots, one JSON document per
// (user, drop number) pair.
package drop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campusmatch/matchagent/internal/db"
	"github.com/campusmatch/matchagent/internal/domain"
)

// jsonStore is the consumer interface for drop persistence.
type jsonStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// Repo stores weekly drops keyed by (userID, dropNumber).
type Repo struct {
	store     jsonStore
	keyPrefix string
	now       func() time.Time
}

// New creates a weekly drop repository.
func New(store jsonStore, keyPrefix string) *Repo {
	return &Repo{store: store, keyPrefix: keyPrefix, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Upsert writes the snapshot for (drop.UserID, drop.DropNumber). A re-run
// within the same ISO week lands on the same key and replaces the whole
// document, which resets OpenedAt to nil: a regenerated snapshot is new
// content the user has not seen yet.
func (r *Repo) Upsert(ctx context.Context, d *domain.WeeklyDrop) error {
	d.OpenedAt = nil

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode drop %s/%d: %w", d.UserID, d.DropNumber, err)
	}
	if err := r.store.JSONSet(ctx, r.key(d.UserID, d.DropNumber), "$", data); err != nil {
		return fmt.Errorf("upsert drop %s/%d: %w: %w", d.UserID, d.DropNumber, err, domain.ErrPersistence)
	}
	return nil
}

// Get fetches the snapshot for (userID, dropNumber).
func (r *Repo) Get(ctx context.Context, userID string, dropNumber int) (*domain.WeeklyDrop, error) {
	data, err := r.store.JSONGet(ctx, r.key(userID, dropNumber))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrDropNotFound
		}
		return nil, fmt.Errorf("get drop %s/%d: %w", userID, dropNumber, err)
	}

	var d domain.WeeklyDrop
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode drop %s/%d: %w", userID, dropNumber, err)
	}
	return &d, nil
}

// Open fetches the snapshot and stamps OpenedAt on first read. The
// transition from nil to a timestamp happens at most once per snapshot;
// later reads leave the original timestamp in place.
func (r *Repo) Open(ctx context.Context, userID string, dropNumber int) (*domain.WeeklyDrop, error) {
	d, err := r.Get(ctx, userID, dropNumber)
	if err != nil {
		return nil, err
	}

	if d.OpenedAt == nil {
		opened := r.now().UTC()
		d.OpenedAt = &opened

		data, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode drop %s/%d: %w", userID, dropNumber, err)
		}
		if err := r.store.JSONSet(ctx, r.key(userID, dropNumber), "$", data); err != nil {
			return nil, fmt.Errorf("mark drop opened %s/%d: %w: %w", userID, dropNumber, err, domain.ErrPersistence)
		}
	}

	return d, nil
}

func (r *Repo) key(userID string, dropNumber int) string {
	return fmt.Sprintf("%sdrop:%s:%d", r.keyPrefix, userID, dropNumber)
}
