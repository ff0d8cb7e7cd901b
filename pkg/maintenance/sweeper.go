// Package maintenance removes sessions that have been idle past a
// configured age, on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/session"
)

type Sweeper struct {
	sessions  *session.Manager
	schedule  string
	idleAfter time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewSweeper(sessions *session.Manager, schedule string, idleAfter time.Duration) (*Sweeper, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron schedule %q", schedule)
	}
	if idleAfter <= 0 {
		return nil, fmt.Errorf("idle threshold must be positive, got %s", idleAfter)
	}
	return &Sweeper{
		sessions:  sessions,
		schedule:  schedule,
		idleAfter: idleAfter,
		now:       time.Now,
		log:       logger.ForComponent(logger.CompMaint),
	}, nil
}

// Run sweeps on every schedule tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(s.schedule, s.now(), false)
		if err != nil {
			return fmt.Errorf("computing next sweep tick: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		removed, err := s.Sweep()
		if err != nil {
			s.log.Error("sweep failed", "error", err)
			continue
		}
		if removed > 0 {
			s.log.Info("swept idle sessions", "removed", removed)
		}
	}
}

// Sweep deletes every idle session whose last activity is older than
// the threshold. Running sessions are never touched.
func (s *Sweeper) Sweep() (int, error) {
	groups, err := s.sessions.Groups()
	if err != nil {
		return 0, fmt.Errorf("listing groups: %w", err)
	}

	cutoff := s.now().Add(-s.idleAfter)
	removed := 0
	for _, groupID := range groups {
		activity, err := s.sessions.Activity(groupID)
		if err != nil {
			s.log.Warn("reading activity index", "group_id", groupID, "error", err)
			continue
		}

		for sessionID, last := range activity {
			if !last.Before(cutoff) {
				continue
			}

			info, err := s.sessions.Get(groupID, sessionID)
			if err != nil {
				s.log.Warn("reading session", "group_id", groupID, "session_id", sessionID, "error", err)
				continue
			}
			if info != nil && info.Status == session.StatusRunning {
				continue
			}

			if err := s.sessions.Delete(groupID, sessionID); err != nil {
				s.log.Warn("deleting idle session", "group_id", groupID, "session_id", sessionID, "error", err)
				continue
			}
			removed++
			s.log.Debug("deleted idle session",
				"group_id", groupID, "session_id", sessionID, "last_active", last)
		}
	}
	return removed, nil
}
