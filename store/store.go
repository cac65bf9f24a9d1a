package store

import (
	"github.com/hupe1980/agentloop/core"
)

// SessionStore persists conversation sessions keyed by session ID.
type SessionStore interface {
	// Save writes the session snapshot.
	Save(session *core.Session) error

	// Delete removes the session. Deleting an unknown session is not an error.
	Delete(id string) error

	// LoadAll returns every stored session.
	LoadAll() ([]*core.Session, error)
}

// ProfileStore persists agent profiles keyed by profile name.
type ProfileStore interface {
	// Save writes the profile.
	Save(profile core.Profile) error

	// Delete removes the profile. Deleting an unknown profile is not an error.
	Delete(name string) error

	// LoadAll returns every stored profile.
	LoadAll() ([]core.Profile, error)
}
