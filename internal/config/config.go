// Package config manages the console's local settings: where the
// orchestrator lives and the operator's long-lived credential.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const (
	// EnvServerURL overrides the configured orchestrator URL.
	EnvServerURL = "REVCTL_SERVER_URL"
	// EnvAPIToken overrides the stored credential.
	EnvAPIToken = "REVCTL_API_TOKEN"

	defaultServerURL = "http://localhost:8000"
)

// Settings is the persisted configuration shape.
type Settings struct {
	ServerURL string `json:"server_url"`
	APIToken  string `json:"api_token,omitempty"`
	Theme     string `json:"theme,omitempty"`
}

// Store loads and saves settings under the console's home directory.
// File writes are guarded with an OS-level lock so two concurrent
// revctl invocations cannot interleave a save.
type Store struct {
	mu       sync.RWMutex
	path     string
	lock     *flock.Flock
	settings *Settings
}

// Dir returns the console's home directory (~/.revctl).
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".revctl")
}

// HistoryPath returns the transcript database location.
func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

// NewStore opens (or bootstraps) the settings file in dir. An empty
// dir means Dir().
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = Dir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	s := &Store{
		path: filepath.Join(dir, "settings.json"),
		lock: flock.New(filepath.Join(dir, "settings.lock")),
		settings: &Settings{
			ServerURL: defaultServerURL,
			Theme:     "dark",
		},
	}

	if err := s.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("write default settings: %w", err)
		}
	}
	return s, nil
}

// Load reads the settings file into memory.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse settings.json: %w", err)
	}
	if settings.ServerURL == "" {
		settings.ServerURL = defaultServerURL
	}
	s.settings = &settings
	return nil
}

// Save writes the in-memory settings back to disk under the file lock.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.settings, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings file: %w", err)
	}
	defer s.lock.Unlock()

	return os.WriteFile(s.path, data, 0o600)
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

// Update applies fn to the settings and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(s.settings)
	s.mu.Unlock()
	return s.Save()
}

// ServerURL returns the orchestrator URL, env override first.
func (s *Store) ServerURL() string {
	if v := os.Getenv(EnvServerURL); v != "" {
		return v
	}
	return s.Get().ServerURL
}

// Credential returns the long-lived bearer credential, env override
// first. Empty means unauthenticated/dev mode: no header is attached.
func (s *Store) Credential() string {
	if v := os.Getenv(EnvAPIToken); v != "" {
		return v
	}
	return s.Get().APIToken
}
