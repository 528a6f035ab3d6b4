package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mrz1836/hwclaim/internal/fileutil"
)

const (
	// SessionFile is the session file name under the home directory.
	SessionFile = "session.json"

	// SettingsFile is the settings file name under the home directory.
	SettingsFile = "settings.json"

	filePermissions = 0o600
)

// ErrCorrupted indicates a state file could not be parsed. The file is moved
// aside and a fresh value is returned alongside the error.
var ErrCorrupted = errors.New("session file is corrupted")

// Store persists State and Settings as JSON files in one directory.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// SessionPath returns the session file path.
func (s *Store) SessionPath() string {
	return filepath.Join(s.dir, SessionFile)
}

// SettingsPath returns the settings file path.
func (s *Store) SettingsPath() string {
	return filepath.Join(s.dir, SettingsFile)
}

// Load reads the session. A missing file yields the initial state.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := New()
	if err := s.readJSON(s.SessionPath(), state); err != nil {
		return New(), err
	}
	if state.Claims == nil {
		state.Claims = make(map[uint32]ClaimState)
	}
	return state, nil
}

// Save writes the session atomically. UpdatedAt is stamped on the written
// copy; the caller's value is not modified.
func (s *Store) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("saving session: %w", os.ErrInvalid)
	}
	out := state.Clone()
	out.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.SessionPath(), out)
}

// Clear removes the session file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.SessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// LoadSettings reads the settings. A missing file yields DefaultSettings.
func (s *Store) LoadSettings() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := DefaultSettings()
	if err := s.readJSON(s.SettingsPath(), settings); err != nil {
		return DefaultSettings(), err
	}
	theme, err := ParseTheme(settings.Theme)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	settings.Theme = theme
	return settings, nil
}

// SaveSettings writes the settings atomically.
func (s *Store) SaveSettings(settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("saving settings: %w", os.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.SettingsPath(), settings)
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is under the configured home directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		corruptPath, moveErr := fileutil.MoveAside(path, "corrupt", s.now().UTC())
		if moveErr != nil {
			return fmt.Errorf("%w: %w (%w)", ErrCorrupted, err, moveErr)
		}
		return fmt.Errorf("%w: %w (moved to %s)", ErrCorrupted, err, corruptPath)
	}
	return nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := fileutil.WriteAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
