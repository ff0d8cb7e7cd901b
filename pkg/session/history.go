package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/taleclaw/pkg/store"
)

// HistoryEntry is one record of a session's append-only log. History is
// never mutated in place.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendHistory appends an entry to the session's history log and
// refreshes the activity index. A zero entry ID or timestamp is filled
// in.
func (m *Manager) AppendHistory(info *Info, entry HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	err = m.locks.Do(lockKey(info.GroupID, info.SessionID), func() error {
		return store.AppendLine(info.HistoryPath, line)
	})
	if err != nil {
		return err
	}
	return m.touchActivity(info.GroupID, info.SessionID)
}

// ReadHistory loads the session's full history log, oldest first.
// Unparseable lines are skipped so one corrupt record does not hide the
// rest of the conversation.
func (m *Manager) ReadHistory(info *Info) ([]HistoryEntry, error) {
	f, err := os.Open(info.HistoryPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", info.HistoryPath, err)
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading history %s: %w", info.HistoryPath, err)
	}
	return entries, nil
}
