package drop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusmatch/matchagent/internal/db"
	"github.com/campusmatch/matchagent/internal/domain"
)

type memStore struct {
	docs    map[string][]byte
	setErr  error
	setKeys []string
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) JSONSet(_ context.Context, key, _ string, data []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setKeys = append(m.setKeys, key)
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	data, ok := m.docs[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func testDrop(userID string) *domain.WeeklyDrop {
	delivered := time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)
	return &domain.WeeklyDrop{
		UserID:         userID,
		DropNumber:     202611,
		MatchedUserIDs: []string{"u2", "u3", "u4"},
		Matches: []domain.DropMatch{
			{UserID: "u2", Name: "Sam", Score: 0.91, MatchReasons: []string{"matches your ask for someone funny"}},
			{UserID: "u3", Name: "Alex", Score: 0.84},
			{UserID: "u4", Name: "Rory", Score: 0.77},
		},
		Status:      domain.DropDelivered,
		DeliveredAt: delivered,
		ExpiresAt:   delivered.Add(domain.DropTTL),
	}
}

func TestRepo_UpsertAndGetRoundtrip(t *testing.T) {
	store := newMemStore()
	repo := New(store, "match:")

	want := testDrop("u1")
	if err := repo.Upsert(context.Background(), want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Get(context.Background(), "u1", 202611)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "u1" || got.DropNumber != 202611 {
		t.Errorf("got %s/%d", got.UserID, got.DropNumber)
	}
	if len(got.Matches) != 3 || got.Matches[0].Name != "Sam" {
		t.Errorf("matches = %+v", got.Matches)
	}
	if got.Status != domain.DropDelivered {
		t.Errorf("status = %q", got.Status)
	}
	if got.OpenedAt != nil {
		t.Error("fresh drop should not be opened")
	}
}

func TestRepo_GetMissingReturnsNotFound(t *testing.T) {
	repo := New(newMemStore(), "match:")

	_, err := repo.Get(context.Background(), "u1", 202611)
	if !errors.Is(err, domain.ErrDropNotFound) {
		t.Fatalf("want ErrDropNotFound, got %v", err)
	}
}

func TestRepo_UpsertResetsOpenedAt(t *testing.T) {
	store := newMemStore()
	opened := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	repo := New(store, "match:").WithClock(func() time.Time { return opened })

	d := testDrop("u1")
	if err := repo.Upsert(context.Background(), d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := repo.Open(context.Background(), "u1", 202611); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Same-week re-run replaces the snapshot; the new content is unseen.
	if err := repo.Upsert(context.Background(), testDrop("u1")); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, err := repo.Get(context.Background(), "u1", 202611)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OpenedAt != nil {
		t.Errorf("OpenedAt = %v after re-upsert, want nil", got.OpenedAt)
	}
}

func TestRepo_OpenStampsOnce(t *testing.T) {
	store := newMemStore()
	first := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	now := first
	repo := New(store, "match:").WithClock(func() time.Time { return now })

	if err := repo.Upsert(context.Background(), testDrop("u1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Open(context.Background(), "u1", 202611)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.OpenedAt == nil || !got.OpenedAt.Equal(first) {
		t.Fatalf("OpenedAt = %v, want %v", got.OpenedAt, first)
	}

	now = first.Add(3 * time.Hour)
	again, err := repo.Open(context.Background(), "u1", 202611)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if again.OpenedAt == nil || !again.OpenedAt.Equal(first) {
		t.Errorf("OpenedAt = %v on second open, want original %v", again.OpenedAt, first)
	}
}

func TestRepo_KeysSeparateUsersAndWeeks(t *testing.T) {
	store := newMemStore()
	repo := New(store, "match:")

	a := testDrop("u1")
	b := testDrop("u2")
	c := testDrop("u1")
	c.DropNumber = 202612
	for _, d := range []*domain.WeeklyDrop{a, b, c} {
		if err := repo.Upsert(context.Background(), d); err != nil {
			t.Fatalf("Upsert %s/%d: %v", d.UserID, d.DropNumber, err)
		}
	}
	if len(store.docs) != 3 {
		t.Errorf("stored %d documents, want 3 distinct keys", len(store.docs))
	}
}

func TestRepo_UpsertWrapsPersistenceError(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("connection reset")
	repo := New(store, "match:")

	err := repo.Upsert(context.Background(), testDrop("u1"))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
}
