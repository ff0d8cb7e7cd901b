package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// GroupWatcher invalidates a GroupRepository's cache when a group's
// config.yaml changes on disk, so edits take effect without a restart.
type GroupWatcher struct {
	repo    *GroupRepository
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewGroupWatcher watches dataDir (and its immediate group directories)
// for config.yaml changes.
func NewGroupWatcher(repo *GroupRepository, log *slog.Logger) (*GroupWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(repo.dataDir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &GroupWatcher{repo: repo, watcher: w, log: log}, nil
}

// Run processes filesystem events until ctx is done.
func (gw *GroupWatcher) Run(ctx context.Context) {
	defer gw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-gw.watcher.Events:
			if !ok {
				return
			}
			gw.handle(event)
		case err, ok := <-gw.watcher.Errors:
			if !ok {
				return
			}
			gw.log.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (gw *GroupWatcher) handle(event fsnotify.Event) {
	// A new group directory appears: watch it for config changes.
	if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == gw.repo.dataDir {
		if err := gw.watcher.Add(event.Name); err == nil {
			gw.log.Debug("watching group dir", slog.String("path", event.Name))
		}
		return
	}

	if filepath.Base(event.Name) != "config.yaml" {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	groupID := filepath.Base(filepath.Dir(event.Name))
	if strings.TrimSpace(groupID) == "" {
		return
	}
	gw.repo.Invalidate(groupID)
	gw.log.Info("group config reloaded", slog.String("group_id", groupID))
}
