package gateway

import (
	"context"

	"github.com/hupe1980/agentloop/core"
)

// Setting is a loosely typed configuration map for a backend (API key,
// base URL, provider specific knobs). Adapters document the keys they read.
type Setting map[string]any

// String returns the string value for key, or "" when absent or not a string.
func (s Setting) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Gateway is the backend contract. Implementations are variants, not an
// inheritance chain: each maps its own stop/finish vocabulary onto the
// canonical core.FinishReason set and is responsible for round-tripping
// tool calls, including incremental JSON-fragment accumulation for
// streamed tool-call arguments.
type Gateway interface {
	// Name returns the backend's display name.
	Name() string

	// Init configures the client from the given settings. Calling Invoke,
	// Stream or ListModels before a successful Init degrades to an
	// empty/error result plus a log line rather than a panic.
	Init(setting Setting) error

	// Invoke sends the request and blocks until the full response is
	// available.
	Invoke(ctx context.Context, req core.Request) (*core.Response, error)

	// Stream sends the request and returns a channel of deltas fed by a
	// background receiver plus an error channel. Both channels are closed
	// when the stream ends; the delta channel never emits after a delta
	// carrying a finish reason.
	Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error)

	// ListModels queries the models available behind this backend.
	ListModels(ctx context.Context) ([]string, error)
}
