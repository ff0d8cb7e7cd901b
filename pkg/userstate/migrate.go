package userstate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Each legacy schema version is its own variant; migration is a chain
// of pure functions v2 -> v3 -> v4. A version outside the known range is
// rejected, never best-effort parsed.

// docV2 had a single role and a single onboarding thread.
type docV2 struct {
	Version            int        `json:"version"`
	UserID             string     `json:"user_id"`
	Role               string     `json:"role,omitempty"`
	Language           string     `json:"language,omitempty"`
	ThreadID           string     `json:"thread_id,omitempty"`
	WorldCreatedAt     *time.Time `json:"world_created_at,omitempty"`
	CharacterCreatedAt *time.Time `json:"character_created_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// docV3 introduced role sets, per-role threads and joined worlds, but
// not command transcripts.
type docV3 struct {
	Version             int             `json:"version"`
	UserID              string          `json:"user_id"`
	Roles               []Role          `json:"roles,omitempty"`
	Language            string          `json:"language,omitempty"`
	OnboardingThreadIDs map[Role]string `json:"onboarding_thread_ids,omitempty"`
	WorldCreatedAt      *time.Time      `json:"world_created_at,omitempty"`
	CharacterCreatedAt  *time.Time      `json:"character_created_at,omitempty"`
	JoinedWorldIDs      []int           `json:"joined_world_ids,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// migrateV2 lifts the single legacy role/thread into the set shapes. No
// field is dropped.
func migrateV2(doc docV2) docV3 {
	out := docV3{
		Version:            3,
		UserID:             doc.UserID,
		Language:           doc.Language,
		WorldCreatedAt:     doc.WorldCreatedAt,
		CharacterCreatedAt: doc.CharacterCreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
	if doc.Role != "" {
		role := Role(doc.Role)
		out.Roles = []Role{role}
		if doc.ThreadID != "" {
			out.OnboardingThreadIDs = map[Role]string{role: doc.ThreadID}
		}
	}
	return out
}

// migrateV3 adds the (empty) transcript log.
func migrateV3(doc docV3) State {
	return State{
		Version:             CurrentVersion,
		UserID:              doc.UserID,
		Roles:               doc.Roles,
		Language:            doc.Language,
		OnboardingThreadIDs: doc.OnboardingThreadIDs,
		WorldCreatedAt:      doc.WorldCreatedAt,
		CharacterCreatedAt:  doc.CharacterCreatedAt,
		JoinedWorldIDs:      doc.JoinedWorldIDs,
		UpdatedAt:           doc.UpdatedAt,
	}
}

// DecodeDocument parses a raw state document of any known version into
// the current shape. Bulk migration tooling uses it to upgrade files in
// place.
func DecodeDocument(data []byte, userID string) (*State, error) {
	return decodeAny(data, userID)
}

// DocumentVersion reports the version field of a raw state document,
// or 0 when it cannot be probed.
func DocumentVersion(data []byte) int {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0
	}
	return probe.Version
}

// decodeAny parses a raw document of any known version into the current
// shape. The userID the caller asked for must match the document's: a
// foreign document must never masquerade as this user's state.
func decodeAny(data []byte, userID string) (*State, error) {
	var probe struct {
		Version int    `json:"version"`
		UserID  string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("probing document: %w", err)
	}
	if probe.UserID != userID {
		return nil, fmt.Errorf("document user_id %q does not match %q", probe.UserID, userID)
	}

	switch probe.Version {
	case 2:
		var doc docV2
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding v2 document: %w", err)
		}
		state := migrateV3(migrateV2(doc))
		return &state, nil
	case 3:
		var doc docV3
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding v3 document: %w", err)
		}
		state := migrateV3(doc)
		return &state, nil
	case CurrentVersion:
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("decoding v4 document: %w", err)
		}
		return &state, nil
	default:
		return nil, fmt.Errorf("unknown state version %d", probe.Version)
	}
}
