package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

// TriggerMode selects how a group summons the bot.
type TriggerMode string

const (
	TriggerModeMention TriggerMode = "mention"
	TriggerModeKeyword TriggerMode = "keyword"
)

// KeywordRouting gates which keyword scopes may trigger the bot. A
// per-bot routing may be stricter than the group's, never looser: the
// effective routing is the field-by-field AND of the two.
type KeywordRouting struct {
	EnableGlobal bool `json:"enable_global" yaml:"enable_global"`
	EnableGroup  bool `json:"enable_group"  yaml:"enable_group"`
	EnableBot    bool `json:"enable_bot"    yaml:"enable_bot"`
}

// And returns the field-by-field conjunction of two routings.
func (r KeywordRouting) And(o KeywordRouting) KeywordRouting {
	return KeywordRouting{
		EnableGlobal: r.EnableGlobal && o.EnableGlobal,
		EnableGroup:  r.EnableGroup && o.EnableGroup,
		EnableBot:    r.EnableBot && o.EnableBot,
	}
}

// BotKeywords is the keyword configuration of one bot identity. Several
// bot identities may be bound to the same group; keyword ownership keeps
// them from answering each other's keywords.
type BotKeywords struct {
	Keywords []string       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Routing  KeywordRouting `json:"keyword_routing"    yaml:"keyword_routing"`
}

// GroupConfig is the per-group configuration consumed by the dispatch
// planner. Loaded from <dataDir>/<groupID>/config.yaml.
type GroupConfig struct {
	Enabled        bool                   `json:"enabled"                   yaml:"enabled"`
	TriggerMode    TriggerMode            `json:"trigger_mode"              yaml:"trigger_mode"`
	Keywords       []string               `json:"keywords,omitempty"        yaml:"keywords,omitempty"`
	KeywordRouting KeywordRouting         `json:"keyword_routing"           yaml:"keyword_routing"`
	AdminUsers     []string               `json:"admin_users,omitempty"     yaml:"admin_users,omitempty"`
	MaxSessions    int                    `json:"max_sessions"              yaml:"max_sessions"`
	Model          string                 `json:"model,omitempty"           yaml:"model,omitempty"`
	EchoRate       float64                `json:"echo_rate,omitempty"       yaml:"echo_rate,omitempty"`
	Bots           map[string]BotKeywords `json:"bots,omitempty"            yaml:"bots,omitempty"`
}

// DefaultGroupConfig is the configuration for a group without a
// config.yaml: responsive, mention-gated, one conversation slot per user.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Enabled:     true,
		TriggerMode: TriggerModeMention,
		KeywordRouting: KeywordRouting{
			EnableGlobal: true,
			EnableGroup:  true,
			EnableBot:    true,
		},
		MaxSessions: 3,
	}
}

// Validate checks group invariants.
func (g *GroupConfig) Validate() error {
	if g.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be >= 1, got %d", g.MaxSessions)
	}
	switch g.TriggerMode {
	case TriggerModeMention, TriggerModeKeyword:
	default:
		return fmt.Errorf("unknown trigger_mode %q", g.TriggerMode)
	}
	if g.EchoRate < 0 || g.EchoRate > 1 {
		return fmt.Errorf("echo_rate must be within [0,1], got %v", g.EchoRate)
	}
	return nil
}

// GroupRepository loads and caches group configs. Group IDs are
// validated as safe path segments before any filesystem access.
type GroupRepository struct {
	dataDir string

	mu    sync.RWMutex
	cache map[string]GroupConfig
}

func NewGroupRepository(dataDir string) *GroupRepository {
	return &GroupRepository{
		dataDir: dataDir,
		cache:   make(map[string]GroupConfig),
	}
}

// Load returns the group's config, reading config.yaml on first access.
// A missing file yields the default config; an invalid file is an error
// so misconfiguration does not silently fall back to defaults.
func (r *GroupRepository) Load(groupID string) (GroupConfig, error) {
	if err := store.ValidateSegment(groupID); err != nil {
		return GroupConfig{}, err
	}

	r.mu.RLock()
	cfg, ok := r.cache[groupID]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := r.loadFromDisk(groupID)
	if err != nil {
		return GroupConfig{}, err
	}

	r.mu.Lock()
	r.cache[groupID] = cfg
	r.mu.Unlock()
	return cfg, nil
}

func (r *GroupRepository) loadFromDisk(groupID string) (GroupConfig, error) {
	path := filepath.Join(r.dataDir, groupID, "config.yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGroupConfig(), nil
	}
	if err != nil {
		return GroupConfig{}, fmt.Errorf("reading group config %s: %w", path, err)
	}

	cfg := DefaultGroupConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GroupConfig{}, fmt.Errorf("parsing group config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return GroupConfig{}, fmt.Errorf("group config %s: %w", path, err)
	}
	return cfg, nil
}

// Invalidate drops a group's cached config so the next Load re-reads it.
func (r *GroupRepository) Invalidate(groupID string) {
	r.mu.Lock()
	delete(r.cache, groupID)
	r.mu.Unlock()
}

// InvalidateAll drops every cached config.
func (r *GroupRepository) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]GroupConfig)
	r.mu.Unlock()
}
