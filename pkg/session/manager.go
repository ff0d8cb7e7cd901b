// Package session manages per-(group, owner, key) conversation sessions
// backed by durable file state: a meta document per session, an
// append-only history log and a per-group activity index.
//
// Filesystem layout per group root:
//
//	<dataDir>/<groupID>/sessions/<sessionID>/meta.json
//	<dataDir>/<groupID>/sessions/<sessionID>/history.jsonl
//	<dataDir>/<groupID>/sessions/activity.json
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/store"
)

// Status is the session lifecycle state: idle -> running -> idle -> ...
// The only terminal transition is external deletion.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// Meta is the persisted session document.
type Meta struct {
	SessionID string    `json:"session_id"`
	GroupID   string    `json:"group_id"`
	OwnerID   string    `json:"owner_id"`
	Key       int       `json:"key"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info is a Meta plus the location of its history log. The history file
// is owned exclusively by this session.
type Info struct {
	Meta
	HistoryPath string `json:"-"`
}

// CreateOptions bound session creation.
type CreateOptions struct {
	Key         int
	MaxSessions int
}

// Manager owns every session document under dataDir. Callers never touch
// the filesystem directly; writes for the same session (and the per-group
// activity index) are serialized through an injected lock registry.
type Manager struct {
	dataDir string
	locks   *store.KeyedLocks
	now     func() time.Time
	log     *slog.Logger
}

func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir: dataDir,
		locks:   store.NewKeyedLocks(),
		now:     time.Now,
		log:     logger.ForComponent(logger.CompSession),
	}
}

// SessionID derives the deterministic session identifier for an owner
// and slot key. The same (owner, key) always maps to the same session.
func SessionID(ownerID string, key int) string {
	return fmt.Sprintf("s%s-%d", ownerID, key)
}

// Create resolves or creates the session for (groupID, userID, key).
// Re-creating an existing session from its owner is idempotent and
// returns the existing document unchanged; from anyone else it fails
// with ErrOwnershipMismatch.
func (m *Manager) Create(groupID, userID string, opts CreateOptions) (*Info, error) {
	if opts.MaxSessions < 1 {
		return nil, fmt.Errorf("%w: max sessions %d", ErrInvalidConfig, opts.MaxSessions)
	}
	if opts.Key < 0 {
		return nil, fmt.Errorf("%w: negative key %d", ErrInvalidConfig, opts.Key)
	}
	if err := store.ValidateSegment(groupID); err != nil {
		return nil, err
	}
	if err := store.ValidateSegment(userID); err != nil {
		return nil, err
	}
	if opts.Key >= opts.MaxSessions {
		return nil, fmt.Errorf("%w: key %d, max %d", ErrKeyExceedsMax, opts.Key, opts.MaxSessions)
	}

	sessionID := SessionID(userID, opts.Key)

	var info *Info
	err := m.locks.Do(lockKey(groupID, sessionID), func() error {
		existing, err := m.readInfo(groupID, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.OwnerID != userID {
				return fmt.Errorf("%w: session %s owned by %s",
					ErrOwnershipMismatch, sessionID, existing.OwnerID)
			}
			info = existing
			return nil
		}

		now := m.now().UTC()
		meta := Meta{
			SessionID: sessionID,
			GroupID:   groupID,
			OwnerID:   userID,
			Key:       opts.Key,
			Status:    StatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.WriteJSONAtomic(m.metaPath(groupID, sessionID), meta); err != nil {
			return err
		}
		info = &Info{Meta: meta, HistoryPath: m.historyPath(groupID, sessionID)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.touchActivity(groupID, sessionID); err != nil {
		m.log.Warn("activity touch failed",
			slog.String("group_id", groupID),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
	return info, nil
}

// Get is a pure read: nil when the session does not exist. An unreadable
// meta document also degrades to nil rather than failing message
// handling; the anomaly is logged.
func (m *Manager) Get(groupID, sessionID string) (*Info, error) {
	if err := store.ValidateSegment(groupID); err != nil {
		return nil, err
	}
	if err := store.ValidateSegment(sessionID); err != nil {
		return nil, err
	}
	info, err := m.readInfo(groupID, sessionID)
	if err != nil {
		m.log.Warn("unreadable session meta",
			slog.String("group_id", groupID),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil, nil
	}
	return info, nil
}

// UpdateStatus writes a copy of the meta with the new status and a fresh
// UpdatedAt, returning the updated Info. The input is not mutated.
func (m *Manager) UpdateStatus(info *Info, status Status) (*Info, error) {
	updated := *info
	err := m.locks.Do(lockKey(info.GroupID, info.SessionID), func() error {
		updated.Status = status
		updated.UpdatedAt = m.now().UTC()
		return store.WriteJSONAtomic(m.metaPath(info.GroupID, info.SessionID), updated.Meta)
	})
	if err != nil {
		return nil, err
	}
	if err := m.touchActivity(info.GroupID, info.SessionID); err != nil {
		m.log.Warn("activity touch failed",
			slog.String("session_id", info.SessionID),
			slog.String("error", err.Error()))
	}
	return &updated, nil
}

// Delete removes a session's directory and activity entry. Used by idle
// maintenance; there is no in-band terminal state.
func (m *Manager) Delete(groupID, sessionID string) error {
	if err := store.ValidateSegment(groupID); err != nil {
		return err
	}
	if err := store.ValidateSegment(sessionID); err != nil {
		return err
	}
	err := m.locks.Do(lockKey(groupID, sessionID), func() error {
		return os.RemoveAll(filepath.Join(m.sessionsDir(groupID), sessionID))
	})
	if err != nil {
		return err
	}
	return m.removeActivity(groupID, sessionID)
}

// Groups lists the group IDs that have session state on disk.
func (m *Manager) Groups() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "users" {
			continue
		}
		if _, err := os.Stat(m.sessionsDir(e.Name())); err == nil {
			groups = append(groups, e.Name())
		}
	}
	return groups, nil
}

func (m *Manager) readInfo(groupID, sessionID string) (*Info, error) {
	var meta Meta
	ok, err := store.ReadJSON(m.metaPath(groupID, sessionID), &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Info{Meta: meta, HistoryPath: m.historyPath(groupID, sessionID)}, nil
}

func (m *Manager) sessionsDir(groupID string) string {
	return filepath.Join(m.dataDir, groupID, "sessions")
}

func (m *Manager) metaPath(groupID, sessionID string) string {
	return filepath.Join(m.sessionsDir(groupID), sessionID, "meta.json")
}

func (m *Manager) historyPath(groupID, sessionID string) string {
	return filepath.Join(m.sessionsDir(groupID), sessionID, "history.jsonl")
}

func lockKey(groupID, sessionID string) string {
	return groupID + "/" + sessionID
}
