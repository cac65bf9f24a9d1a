// Package engine wires the runtime together: it registers tools (local,
// MCP-bridged and agent-backed), manages profiles and sessions, dispatches
// tool calls and forwards model requests to the configured gateway.
package engine
