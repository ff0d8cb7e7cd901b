package userstate

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir), dir
}

func TestReadAbsentIsNil(t *testing.T) {
	s, _ := newTestStore(t)
	state, err := s.Read("u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil, got %+v", state)
	}
}

func TestReadUnsafeUserID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Read("../u1")
	if !errors.Is(err, store.ErrPathSegmentUnsafe) {
		t.Errorf("got %v, want ErrPathSegmentUnsafe", err)
	}
}

func TestUpsertCreatesAndStamps(t *testing.T) {
	s, _ := newTestStore(t)

	state, err := s.SetLanguage("u1", "en")
	if err != nil {
		t.Fatalf("set language: %v", err)
	}
	if state.Language != "en" || state.UserID != "u1" || state.Version != CurrentVersion {
		t.Errorf("state: %+v", state)
	}
	if state.UpdatedAt.IsZero() {
		t.Error("UpdatedAt must be stamped")
	}

	got, err := s.Read("u1")
	if err != nil || got == nil {
		t.Fatalf("read back: %+v %v", got, err)
	}
	if got.Language != "en" {
		t.Errorf("persisted language: %q", got.Language)
	}
}

func TestAddRolesIdempotent(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.AddRoles("u1", RoleCreator); err != nil {
		t.Fatal(err)
	}
	state, err := s.AddRoles("u1", RoleCreator, RolePlayer)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Roles) != 2 {
		t.Errorf("roles duplicated: %v", state.Roles)
	}
}

func TestMarkWorldCreatedWriteOnce(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.MarkWorldCreated("u1")
	if err != nil {
		t.Fatal(err)
	}
	if first.WorldCreatedAt == nil {
		t.Fatal("expected timestamp")
	}

	second, err := s.MarkWorldCreated("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.WorldCreatedAt.Equal(*first.WorldCreatedAt) {
		t.Errorf("worldCreatedAt changed: %v vs %v", second.WorldCreatedAt, first.WorldCreatedAt)
	}
}

func TestMarkCharacterCreatedWriteOnce(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.MarkCharacterCreated("u1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.MarkCharacterCreated("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CharacterCreatedAt.Equal(*first.CharacterCreatedAt) {
		t.Error("characterCreatedAt must be write-once")
	}
}

func TestAddJoinedWorldDedupAndCap(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.AddJoinedWorld("u1", 7); err != nil {
		t.Fatal(err)
	}
	state, err := s.AddJoinedWorld("u1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.JoinedWorldIDs) != 1 {
		t.Errorf("duplicate world id: %v", state.JoinedWorldIDs)
	}

	for i := 0; i < 60; i++ {
		if state, err = s.AddJoinedWorld("u1", 100+i); err != nil {
			t.Fatal(err)
		}
	}
	if len(state.JoinedWorldIDs) != 50 {
		t.Fatalf("cap: got %d, want 50", len(state.JoinedWorldIDs))
	}
	// Oldest dropped first: 7 and the earliest additions are gone, the
	// latest remains last.
	if state.JoinedWorldIDs[0] == 7 {
		t.Error("oldest entry should have been dropped")
	}
	if state.JoinedWorldIDs[49] != 159 {
		t.Errorf("latest entry: got %d, want 159", state.JoinedWorldIDs[49])
	}
}

func TestAppendCommandTranscriptOrderAndCap(t *testing.T) {
	s, _ := newTestStore(t)

	var state *State
	var err error
	for i := 0; i < 55; i++ {
		if state, err = s.AppendCommandTranscript("u1", string(rune('a'+i%26))); err != nil {
			t.Fatal(err)
		}
	}
	if len(state.CommandTranscripts) != 50 {
		t.Fatalf("cap: got %d, want 50", len(state.CommandTranscripts))
	}
	// Strict ordering preserved for the retained suffix.
	if state.CommandTranscripts[49] != string(rune('a'+54%26)) {
		t.Errorf("last transcript: %q", state.CommandTranscripts[49])
	}
}

func TestConcurrentUpsertsBothApply(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.SetLanguage("u1", "fr"); err != nil {
			t.Errorf("set language: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := s.AddRoles("u1", RolePlayer); err != nil {
			t.Errorf("add roles: %v", err)
		}
	}()
	wg.Wait()

	state, err := s.Read("u1")
	if err != nil || state == nil {
		t.Fatalf("read: %+v %v", state, err)
	}
	if state.Language != "fr" {
		t.Error("language patch lost")
	}
	if !state.hasRole(RolePlayer) {
		t.Error("role patch lost")
	}
}

func writeRawState(t *testing.T, dir, userID, content string) {
	t.Helper()
	path := filepath.Join(dir, "users", userID, "state.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReadCorruptIsNil(t *testing.T) {
	s, dir := newTestStore(t)
	writeRawState(t, dir, "u1", "{broken")

	state, err := s.Read("u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if state != nil {
		t.Error("corrupt document must degrade to nil")
	}
}

func TestReadForeignDocumentIsNil(t *testing.T) {
	s, dir := newTestStore(t)
	// A document claiming to belong to someone else, e.g. after a
	// directory mixup.
	writeRawState(t, dir, "u1", `{"version":4,"user_id":"u2","language":"en"}`)

	state, err := s.Read("u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if state != nil {
		t.Error("foreign document must never masquerade as this user's state")
	}
}

func TestReadUnknownVersionIsNil(t *testing.T) {
	s, dir := newTestStore(t)
	writeRawState(t, dir, "u1", `{"version":99,"user_id":"u1"}`)

	state, err := s.Read("u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if state != nil {
		t.Error("unknown version must be rejected, not best-effort parsed")
	}
}
