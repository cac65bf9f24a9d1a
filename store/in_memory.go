package store

import (
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// InMemorySessionStore is a volatile SessionStore keeping sessions in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

var _ SessionStore = (*InMemorySessionStore)(nil)

// NewInMemorySessionStore constructs an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*core.Session)}
}

// Save stores the session snapshot.
func (s *InMemorySessionStore) Save(session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// Delete removes the session.
func (s *InMemorySessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// LoadAll returns all stored sessions.
func (s *InMemorySessionStore) LoadAll() ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*core.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// InMemoryProfileStore is a volatile ProfileStore backed by a map.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]core.Profile
}

var _ ProfileStore = (*InMemoryProfileStore)(nil)

// NewInMemoryProfileStore constructs an empty in-memory profile store.
func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{profiles: make(map[string]core.Profile)}
}

// Save stores the profile.
func (s *InMemoryProfileStore) Save(profile core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Name] = profile
	return nil
}

// Delete removes the profile.
func (s *InMemoryProfileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, name)
	return nil
}

// LoadAll returns all stored profiles.
func (s *InMemoryProfileStore) LoadAll() ([]core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]core.Profile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		profiles = append(profiles, profile)
	}
	return profiles, nil
}
