package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyland-inc/taleclaw/pkg/userstate"
)

func writeState(t *testing.T, dataDir, userID, content string) string {
	t.Helper()
	path := filepath.Join(dataDir, "users", userID, "state.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunUsersMigratesLegacyDocuments(t *testing.T) {
	dataDir := t.TempDir()
	v2Path := writeState(t, dataDir, "u1",
		`{"version":2,"user_id":"u1","role":"creator","thread_id":"t-1","updated_at":"2025-01-01T00:00:00Z"}`)
	writeState(t, dataDir, "u2",
		`{"version":3,"user_id":"u2","roles":["player"],"updated_at":"2025-01-01T00:00:00Z"}`)
	writeState(t, dataDir, "u3",
		`{"version":4,"user_id":"u3","updated_at":"2025-01-01T00:00:00Z"}`)

	result, err := RunUsers(Options{DataDir: dataDir})
	if err != nil {
		t.Fatal(err)
	}
	if result.Scanned != 3 || result.Migrated != 2 || result.Current != 1 {
		t.Errorf("result: %+v", result)
	}
	if len(result.Failed) != 0 {
		t.Errorf("failures: %v", result.Failed)
	}

	data, err := os.ReadFile(v2Path)
	if err != nil {
		t.Fatal(err)
	}
	if userstate.DocumentVersion(data) != userstate.CurrentVersion {
		t.Errorf("v2 document not upgraded: %s", data)
	}
	state, err := userstate.DecodeDocument(data, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if state.OnboardingThreadIDs[userstate.RoleCreator] != "t-1" {
		t.Errorf("migrated thread id lost: %+v", state)
	}
}

func TestRunUsersDryRunLeavesFilesUntouched(t *testing.T) {
	dataDir := t.TempDir()
	path := writeState(t, dataDir, "u1",
		`{"version":2,"user_id":"u1","updated_at":"2025-01-01T00:00:00Z"}`)
	before, _ := os.ReadFile(path)

	result, err := RunUsers(Options{DataDir: dataDir, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Migrated != 1 {
		t.Errorf("result: %+v", result)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("dry run must not modify files")
	}
}

func TestRunUsersReportsUndecodableDocuments(t *testing.T) {
	dataDir := t.TempDir()
	writeState(t, dataDir, "u1", `{"version":99,"user_id":"u1"}`)
	writeState(t, dataDir, "u2", `{"version":2,"user_id":"someone-else"}`)

	result, err := RunUsers(Options{DataDir: dataDir})
	if err != nil {
		t.Fatal(err)
	}
	if result.Migrated != 0 || len(result.Failed) != 2 {
		t.Errorf("result: %+v", result)
	}
}

func TestRunUsersMissingDataDir(t *testing.T) {
	result, err := RunUsers(Options{DataDir: filepath.Join(t.TempDir(), "nope")})
	if err != nil {
		t.Fatal(err)
	}
	if result.Scanned != 0 {
		t.Errorf("result: %+v", result)
	}

	if _, err := RunUsers(Options{}); err == nil {
		t.Error("expected error for empty data dir")
	}
}
