package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

func writeGroupYAML(t *testing.T, dataDir, groupID, content string) {
	t.Helper()
	dir := filepath.Join(dataDir, groupID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestGroupRepositoryMissingFileDefaults(t *testing.T) {
	repo := NewGroupRepository(t.TempDir())

	cfg, err := repo.Load("g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Enabled {
		t.Error("default group should be enabled")
	}
	if cfg.TriggerMode != TriggerModeMention {
		t.Errorf("trigger mode: got %q, want mention", cfg.TriggerMode)
	}
	if cfg.MaxSessions < 1 {
		t.Errorf("max_sessions must be >= 1, got %d", cfg.MaxSessions)
	}
}

func TestGroupRepositoryLoadsYAML(t *testing.T) {
	dataDir := t.TempDir()
	writeGroupYAML(t, dataDir, "g1", `
enabled: true
trigger_mode: keyword
keywords: [dragon, tavern]
keyword_routing:
  enable_global: true
  enable_group: true
  enable_bot: false
max_sessions: 5
admin_users: ["u1"]
bots:
  bot-a:
    keywords: [alchemy]
    keyword_routing:
      enable_global: true
      enable_group: true
      enable_bot: true
`)

	repo := NewGroupRepository(dataDir)
	cfg, err := repo.Load("g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TriggerMode != TriggerModeKeyword {
		t.Errorf("trigger mode: got %q", cfg.TriggerMode)
	}
	if len(cfg.Keywords) != 2 {
		t.Errorf("keywords: got %v", cfg.Keywords)
	}
	if cfg.KeywordRouting.EnableBot {
		t.Error("enable_bot should be false")
	}
	if cfg.MaxSessions != 5 {
		t.Errorf("max_sessions: got %d", cfg.MaxSessions)
	}
	if _, ok := cfg.Bots["bot-a"]; !ok {
		t.Error("expected bot-a keyword config")
	}
}

func TestGroupRepositoryRejectsInvalid(t *testing.T) {
	dataDir := t.TempDir()
	writeGroupYAML(t, dataDir, "g1", "enabled: true\ntrigger_mode: keyword\nmax_sessions: 0\n")

	repo := NewGroupRepository(dataDir)
	if _, err := repo.Load("g1"); err == nil {
		t.Error("expected error for max_sessions 0")
	}
}

func TestGroupRepositoryUnsafeGroupID(t *testing.T) {
	repo := NewGroupRepository(t.TempDir())
	_, err := repo.Load("../etc")
	if !errors.Is(err, store.ErrPathSegmentUnsafe) {
		t.Errorf("expected ErrPathSegmentUnsafe, got %v", err)
	}
}

func TestGroupRepositoryInvalidate(t *testing.T) {
	dataDir := t.TempDir()
	writeGroupYAML(t, dataDir, "g1", "enabled: true\ntrigger_mode: mention\nmax_sessions: 2\n")

	repo := NewGroupRepository(dataDir)
	cfg, err := repo.Load("g1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxSessions != 2 {
		t.Fatalf("max_sessions: got %d", cfg.MaxSessions)
	}

	writeGroupYAML(t, dataDir, "g1", "enabled: true\ntrigger_mode: mention\nmax_sessions: 7\n")

	// Cached until invalidated.
	cfg, _ = repo.Load("g1")
	if cfg.MaxSessions != 2 {
		t.Errorf("expected cached value 2, got %d", cfg.MaxSessions)
	}

	repo.Invalidate("g1")
	cfg, _ = repo.Load("g1")
	if cfg.MaxSessions != 7 {
		t.Errorf("expected reloaded value 7, got %d", cfg.MaxSessions)
	}
}

func TestKeywordRoutingAnd(t *testing.T) {
	group := KeywordRouting{EnableGlobal: true, EnableGroup: true, EnableBot: true}
	bot := KeywordRouting{EnableGlobal: false, EnableGroup: true, EnableBot: true}

	eff := group.And(bot)
	if eff.EnableGlobal {
		t.Error("bot routing must be able to tighten the group's")
	}
	if !eff.EnableGroup || !eff.EnableBot {
		t.Error("agreeing fields must stay enabled")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TALECLAW_DATA_DIR", "/tmp/claw-data")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/claw-data" {
		t.Errorf("data dir: got %q", cfg.DataDir)
	}
}
