package core

import "github.com/google/uuid"

// Profile is a named, reusable agent configuration. Immutable for the
// lifetime of a session that references it; edited only through the
// engine's profile CRUD.
type Profile struct {
	Name          string   `json:"name"`
	Prompt        string   `json:"prompt"`
	Tools         []string `json:"tools"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int64   `json:"max_tokens,omitempty"`
	MaxIterations int      `json:"max_iterations"`
}

// DefaultMaxIterations bounds the tool-calling loop when a profile does
// not set its own limit.
const DefaultMaxIterations = 10

// Session is the durable conversation record: identity, the profile it was
// created from, a display name, the selected model and the ordered message
// history. Messages are strictly append-ordered; the first message, if any
// exist, is always the SYSTEM prompt.
type Session struct {
	ID       string    `json:"id"`
	Profile  string    `json:"profile"`
	Name     string    `json:"name"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

// NewSession creates an empty session bound to a profile.
func NewSession(profile string) *Session {
	return &Session{
		ID:      NewID(),
		Profile: profile,
		Name:    "Default session",
	}
}

// NewID generates a unique identifier for sessions and synthetic deltas.
func NewID() string {
	return uuid.New().String()
}
