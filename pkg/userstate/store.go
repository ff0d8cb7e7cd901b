package userstate

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tinyland-inc/taleclaw/pkg/logger"
	"github.com/tinyland-inc/taleclaw/pkg/store"
)

// Store owns `<dataDir>/users/<userID>/state.json` documents. All
// mutation goes through Upsert, which runs inside a per-user critical
// section, so read-modify-write is atomic with respect to other calls on
// the same user and no setter needs a second lock layer.
type Store struct {
	dataDir string
	locks   *store.KeyedLocks
	now     func() time.Time
	log     *slog.Logger
}

func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
		locks:   store.NewKeyedLocks(),
		now:     time.Now,
		log:     logger.ForComponent(logger.CompUser),
	}
}

func (s *Store) statePath(userID string) string {
	return filepath.Join(s.dataDir, "users", userID, "state.json")
}

// Read loads a user's state. Absent, corrupt, unknown-version and
// foreign documents all yield nil: the user appears new rather than
// crashing message handling. Only an unsafe userID is an error.
func (s *Store) Read(userID string) (*State, error) {
	if err := store.ValidateSegment(userID); err != nil {
		return nil, err
	}
	return s.read(userID), nil
}

func (s *Store) read(userID string) *State {
	data, err := os.ReadFile(s.statePath(userID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("unreadable user state",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
		return nil
	}
	state, err := decodeAny(data, userID)
	if err != nil {
		s.log.Warn("rejected user state document",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil
	}
	return state
}

// Upsert is the only mutation primitive: read current state (or
// defaults), apply the patch, stamp UpdatedAt, write atomically, all
// inside the user's critical section.
func (s *Store) Upsert(userID string, patch func(*State)) (*State, error) {
	if err := store.ValidateSegment(userID); err != nil {
		return nil, err
	}

	var result *State
	err := s.locks.Do(userID, func() error {
		state := s.read(userID)
		if state == nil {
			state = defaultState(userID)
		}
		patch(state)
		state.Version = CurrentVersion
		state.UserID = userID
		state.UpdatedAt = s.now().UTC()
		if err := store.WriteJSONAtomic(s.statePath(userID), state); err != nil {
			return err
		}
		result = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetLanguage records the user's preferred language.
func (s *Store) SetLanguage(userID, language string) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		st.Language = language
	})
}

// AddRoles adds roles with set semantics; repeated calls do not
// duplicate.
func (s *Store) AddRoles(userID string, roles ...Role) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		for _, role := range roles {
			st.addRole(role)
		}
	})
}

// SetOnboardingThread records the onboarding thread for a role.
func (s *Store) SetOnboardingThread(userID string, role Role, threadID string) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		if st.OnboardingThreadIDs == nil {
			st.OnboardingThreadIDs = make(map[Role]string)
		}
		st.OnboardingThreadIDs[role] = threadID
	})
}

// MarkWorldCreated stamps the first world creation. Write-once: a
// second call returns the state with the original timestamp untouched.
func (s *Store) MarkWorldCreated(userID string) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		if st.WorldCreatedAt == nil {
			now := s.now().UTC()
			st.WorldCreatedAt = &now
		}
	})
}

// MarkCharacterCreated stamps the first character creation. Write-once.
func (s *Store) MarkCharacterCreated(userID string) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		if st.CharacterCreatedAt == nil {
			now := s.now().UTC()
			st.CharacterCreatedAt = &now
		}
	})
}

// AddJoinedWorld appends a world ID, de-duplicated, capped to the most
// recent 50.
func (s *Store) AddJoinedWorld(userID string, worldID int) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		st.addJoinedWorld(worldID)
	})
}

// AppendCommandTranscript appends to the ordered transcript log, capped
// to the most recent 50.
func (s *Store) AppendCommandTranscript(userID, transcript string) (*State, error) {
	return s.Upsert(userID, func(st *State) {
		st.appendTranscript(transcript)
	})
}
