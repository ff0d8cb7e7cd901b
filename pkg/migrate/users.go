// Package migrate upgrades on-disk user state documents to the current
// schema version in bulk.
package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tinyland-inc/taleclaw/pkg/store"
	"github.com/tinyland-inc/taleclaw/pkg/userstate"
)

type Options struct {
	DataDir string
	DryRun  bool
}

type Result struct {
	Scanned  int
	Migrated int
	Current  int
	Failed   []string
}

// RunUsers walks <dataDir>/users/<userID>/state.json and rewrites every
// legacy document at the current version. Documents that cannot be
// decoded are reported, never modified.
func RunUsers(opts Options) (*Result, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data dir not set")
	}

	usersDir := filepath.Join(opts.DataDir, "users")
	entries, err := os.ReadDir(usersDir)
	if errors.Is(err, os.ErrNotExist) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading users dir: %w", err)
	}

	result := &Result{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		userID := entry.Name()
		path := filepath.Join(usersDir, userID, "state.json")

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", userID, err))
			continue
		}
		result.Scanned++

		if userstate.DocumentVersion(data) == userstate.CurrentVersion {
			result.Current++
			continue
		}

		state, err := userstate.DecodeDocument(data, userID)
		if err != nil {
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", userID, err))
			continue
		}

		if !opts.DryRun {
			if err := store.WriteJSONAtomic(path, state); err != nil {
				result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", userID, err))
				continue
			}
		}
		result.Migrated++
	}
	return result, nil
}

func PrintSummary(result *Result) {
	fmt.Printf("Scanned %d user state files: %d migrated, %d already current\n",
		result.Scanned, result.Migrated, result.Current)
	if len(result.Failed) > 0 {
		fmt.Println("Failures:")
		for _, f := range result.Failed {
			fmt.Printf("  - %s\n", f)
		}
	}
}
