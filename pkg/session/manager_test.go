package session

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir())
}

func TestCreateSession(t *testing.T) {
	m := newTestManager(t)

	info, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if info.SessionID != SessionID("u1", 0) {
		t.Errorf("session id: got %q", info.SessionID)
	}
	if info.Status != StatusIdle {
		t.Errorf("status: got %q, want idle", info.Status)
	}
	if info.OwnerID != "u1" || info.GroupID != "g1" || info.Key != 0 {
		t.Errorf("meta: %+v", info.Meta)
	}
	if info.CreatedAt.IsZero() || !info.CreatedAt.Equal(info.UpdatedAt) {
		t.Errorf("timestamps: created %v updated %v", info.CreatedAt, info.UpdatedAt)
	}

	// Persisted and readable.
	got, err := m.Get("g1", info.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.SessionID != info.SessionID {
		t.Errorf("get: %+v", got)
	}
}

func TestCreateInvalidConfig(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("maxSessions 0: got %v, want ErrInvalidConfig", err)
	}
	if _, err := m.Create("g1", "u1", CreateOptions{Key: -1, MaxSessions: 3}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative key: got %v, want ErrInvalidConfig", err)
	}
}

func TestCreateKeyExceedsMax(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("g1", "u1", CreateOptions{Key: 3, MaxSessions: 3})
	if !errors.Is(err, ErrKeyExceedsMax) {
		t.Errorf("got %v, want ErrKeyExceedsMax", err)
	}
}

func TestCreateIdempotentForOwner(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Create("g1", "u1", CreateOptions{Key: 1, MaxSessions: 3})
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Create("g1", "u1", CreateOptions{Key: 1, MaxSessions: 3})
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session ids differ: %q vs %q", first.SessionID, second.SessionID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("idempotent create must return the existing document unchanged")
	}
}

func TestCreateOwnershipMismatch(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	// Seed a session document at u1's deterministic path but owned by a
	// different user, as a crafted-ID collision would produce.
	sessionID := SessionID("u1", 0)
	meta := Meta{
		SessionID: sessionID,
		GroupID:   "g1",
		OwnerID:   "intruder",
		Key:       0,
		Status:    StatusIdle,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	path := filepath.Join(dir, "g1", "sessions", sessionID, "meta.json")
	if err := store.WriteJSONAtomic(path, meta); err != nil {
		t.Fatal(err)
	}

	_, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 3})
	if !errors.Is(err, ErrOwnershipMismatch) {
		t.Errorf("got %v, want ErrOwnershipMismatch", err)
	}
}

func TestCreateUnsafeSegments(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Create("../g1", "u1", CreateOptions{Key: 0, MaxSessions: 1}); !errors.Is(err, store.ErrPathSegmentUnsafe) {
		t.Errorf("group: got %v, want ErrPathSegmentUnsafe", err)
	}
	if _, err := m.Create("g1", "u/1", CreateOptions{Key: 0, MaxSessions: 1}); !errors.Is(err, store.ErrPathSegmentUnsafe) {
		t.Errorf("user: got %v, want ErrPathSegmentUnsafe", err)
	}
}

func TestGetAbsent(t *testing.T) {
	m := newTestManager(t)
	info, err := m.Get("g1", "s-nope-0")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestUpdateStatus(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	m.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	info, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 1})
	if err != nil {
		t.Fatal(err)
	}

	running, err := m.UpdateStatus(info, StatusRunning)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if running.Status != StatusRunning {
		t.Errorf("status: got %q", running.Status)
	}
	if !running.UpdatedAt.After(info.UpdatedAt) {
		t.Error("UpdatedAt must advance")
	}
	// Copy-on-write: the input is untouched.
	if info.Status != StatusIdle {
		t.Errorf("input mutated: %q", info.Status)
	}

	// Persisted.
	got, _ := m.Get("g1", info.SessionID)
	if got.Status != StatusRunning {
		t.Errorf("persisted status: got %q", got.Status)
	}
}

func TestActivityIndex(t *testing.T) {
	m := newTestManager(t)

	info, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 2})
	if err != nil {
		t.Fatal(err)
	}

	index, err := m.Activity("g1")
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	first, ok := index[info.SessionID]
	if !ok {
		t.Fatal("expected activity entry after create")
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := m.UpdateStatus(info, StatusRunning); err != nil {
		t.Fatal(err)
	}

	index, _ = m.Activity("g1")
	if !index[info.SessionID].After(first) {
		t.Error("activity must be re-touched on status update")
	}
}

func TestDeleteSession(t *testing.T) {
	m := newTestManager(t)
	info, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Delete("g1", info.SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := m.Get("g1", info.SessionID)
	if got != nil {
		t.Error("session should be gone")
	}
	index, _ := m.Activity("g1")
	if _, ok := index[info.SessionID]; ok {
		t.Error("activity entry should be removed")
	}
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	m := newTestManager(t)

	const workers = 10
	var wg sync.WaitGroup
	infos := make([]*Info, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			infos[n], errs[n] = m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 1})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if infos[i].SessionID != infos[0].SessionID {
			t.Errorf("worker %d: session id %q", i, infos[i].SessionID)
		}
		if !infos[i].CreatedAt.Equal(infos[0].CreatedAt) {
			t.Errorf("worker %d: CreatedAt differs", i)
		}
	}
}

func TestGroups(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create("g1", "u1", CreateOptions{Key: 0, MaxSessions: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create("g2", "u2", CreateOptions{Key: 0, MaxSessions: 1}); err != nil {
		t.Fatal(err)
	}

	groups, err := m.Groups()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Errorf("groups: got %v", groups)
	}
}
