// Package logging provides a minimal logging interface and adapters for the
// runtime.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine and agents use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - RuntimeLogger with session/profile context and domain helpers
//   - Tracer recording the lifecycle of one agent session
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(gw, func(o *engine.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
