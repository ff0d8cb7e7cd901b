package session

import (
	"path/filepath"
	"time"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

// The activity index records the last-touched time per session within a
// group. Idle-session maintenance reads it to decide what to expire; it
// is advisory, so a failed touch never fails the triggering operation.

func (m *Manager) activityPath(groupID string) string {
	return filepath.Join(m.sessionsDir(groupID), "activity.json")
}

func activityLockKey(groupID string) string {
	return "activity/" + groupID
}

func (m *Manager) touchActivity(groupID, sessionID string) error {
	return m.locks.Do(activityLockKey(groupID), func() error {
		index := make(map[string]time.Time)
		if _, err := store.ReadJSON(m.activityPath(groupID), &index); err != nil {
			// A corrupt index is rebuilt rather than wedging every write.
			index = make(map[string]time.Time)
		}
		index[sessionID] = m.now().UTC()
		return store.WriteJSONAtomic(m.activityPath(groupID), index)
	})
}

func (m *Manager) removeActivity(groupID, sessionID string) error {
	return m.locks.Do(activityLockKey(groupID), func() error {
		index := make(map[string]time.Time)
		ok, err := store.ReadJSON(m.activityPath(groupID), &index)
		if err != nil || !ok {
			return err
		}
		delete(index, sessionID)
		return store.WriteJSONAtomic(m.activityPath(groupID), index)
	})
}

// Activity returns the group's activity index. Missing index means no
// recorded activity.
func (m *Manager) Activity(groupID string) (map[string]time.Time, error) {
	if err := store.ValidateSegment(groupID); err != nil {
		return nil, err
	}
	index := make(map[string]time.Time)
	if _, err := store.ReadJSON(m.activityPath(groupID), &index); err != nil {
		return nil, err
	}
	return index, nil
}
