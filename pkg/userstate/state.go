// Package userstate persists one versioned JSON document per user:
// roles, language, onboarding progress and capped activity logs.
//
// Reads never fail message handling: an absent, corrupt or foreign
// document degrades to nil and the user simply appears new. Writes
// validate and fail loudly. This asymmetry is a contract, not a bug.
package userstate

import (
	"slices"
	"time"
)

// CurrentVersion is the schema version written by this build. Older
// versions are migrated on read; unknown versions are rejected.
const CurrentVersion = 4

// Role is an onboarding track a user can be on.
type Role string

const (
	RoleCreator Role = "creator"
	RolePlayer  Role = "player"
)

// Caps for the append logs. An unbounded append log is a disk-growth
// bug, not a feature.
const (
	maxJoinedWorlds = 50
	maxTranscripts  = 50
)

// State is the current (v4) user document.
type State struct {
	Version             int             `json:"version"`
	UserID              string          `json:"user_id"`
	Roles               []Role          `json:"roles,omitempty"`
	Language            string          `json:"language,omitempty"`
	OnboardingThreadIDs map[Role]string `json:"onboarding_thread_ids,omitempty"`
	WorldCreatedAt      *time.Time      `json:"world_created_at,omitempty"`
	CharacterCreatedAt  *time.Time      `json:"character_created_at,omitempty"`
	JoinedWorldIDs      []int           `json:"joined_world_ids,omitempty"`
	CommandTranscripts  []string        `json:"command_transcripts,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func defaultState(userID string) *State {
	return &State{
		Version: CurrentVersion,
		UserID:  userID,
	}
}

// hasRole reports set membership.
func (s *State) hasRole(role Role) bool {
	return slices.Contains(s.Roles, role)
}

// addRole inserts with set semantics; duplicates are no-ops.
func (s *State) addRole(role Role) {
	if !s.hasRole(role) {
		s.Roles = append(s.Roles, role)
	}
}

// addJoinedWorld appends with de-duplication, keeping the most recent
// maxJoinedWorlds entries (oldest dropped first).
func (s *State) addJoinedWorld(worldID int) {
	if slices.Contains(s.JoinedWorldIDs, worldID) {
		return
	}
	s.JoinedWorldIDs = append(s.JoinedWorldIDs, worldID)
	if n := len(s.JoinedWorldIDs); n > maxJoinedWorlds {
		s.JoinedWorldIDs = s.JoinedWorldIDs[n-maxJoinedWorlds:]
	}
}

// appendTranscript keeps strict ordering, capped to the most recent
// maxTranscripts entries.
func (s *State) appendTranscript(transcript string) {
	s.CommandTranscripts = append(s.CommandTranscripts, transcript)
	if n := len(s.CommandTranscripts); n > maxTranscripts {
		s.CommandTranscripts = s.CommandTranscripts[n-maxTranscripts:]
	}
}
