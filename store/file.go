package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// DefaultDataDirName is the runtime data directory name. A directory with
// this name in the current working directory takes precedence; otherwise the
// user's home directory is used (created on demand).
const DefaultDataDirName = ".agentloop"

// ResolveDataDir locates the runtime data directory following the
// cwd-then-home convention.
func ResolveDataDir(name string) (string, error) {
	cwd, err := os.Getwd()
	if err == nil {
		local := filepath.Join(cwd, name)
		if info, statErr := os.Stat(local); statErr == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	return dir, nil
}

// FileStore persists sessions and profiles as one indented JSON document per
// entity, sessions under <dir>/session and profiles under <dir>/profile.
// It implements SessionStore directly; Profiles() exposes the profile side.
type FileStore struct {
	mu         sync.Mutex
	sessionDir string
	profileDir string
}

var (
	_ SessionStore = (*FileStore)(nil)
	_ ProfileStore = profileView{}
)

// NewFileStore creates the session and profile subdirectories under dir.
func NewFileStore(dir string) (*FileStore, error) {
	sessionDir := filepath.Join(dir, "session")
	profileDir := filepath.Join(dir, "profile")

	for _, d := range []string{sessionDir, profileDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	return &FileStore{sessionDir: sessionDir, profileDir: profileDir}, nil
}

// Save writes the session snapshot to <dir>/session/<id>.json.
func (s *FileStore) Save(session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.sessionDir, session.ID+".json")
	return util.WriteJSONFile(path, session)
}

// Delete removes the session file if present.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeIfExists(filepath.Join(s.sessionDir, id+".json"))
}

// LoadAll reads every session document under the session directory.
func (s *FileStore) LoadAll() ([]*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []*core.Session

	err := eachJSONFile(s.sessionDir, func(path string) error {
		var session core.Session
		if _, err := util.ReadJSONFile(path, &session); err != nil {
			return fmt.Errorf("load session %s: %w", path, err)
		}
		sessions = append(sessions, &session)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// SaveProfile writes the profile to <dir>/profile/<name>.json.
func (s *FileStore) SaveProfile(profile core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.profileDir, profile.Name+".json")
	return util.WriteJSONFile(path, profile)
}

// DeleteProfile removes the profile file if present.
func (s *FileStore) DeleteProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeIfExists(filepath.Join(s.profileDir, name+".json"))
}

// LoadAllProfiles reads every profile document under the profile directory.
func (s *FileStore) LoadAllProfiles() ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profiles []core.Profile

	err := eachJSONFile(s.profileDir, func(path string) error {
		var profile core.Profile
		if _, err := util.ReadJSONFile(path, &profile); err != nil {
			return fmt.Errorf("load profile %s: %w", path, err)
		}
		profiles = append(profiles, profile)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

// Profiles exposes the profile side of the store as a ProfileStore.
func (s *FileStore) Profiles() ProfileStore {
	return profileView{s}
}

// profileView adapts the profile methods onto the ProfileStore interface so
// one FileStore can serve both roles without method name collisions.
type profileView struct{ s *FileStore }

func (v profileView) Save(profile core.Profile) error  { return v.s.SaveProfile(profile) }
func (v profileView) Delete(name string) error         { return v.s.DeleteProfile(name) }
func (v profileView) LoadAll() ([]core.Profile, error) { return v.s.LoadAllProfiles() }

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func eachJSONFile(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := fn(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}
