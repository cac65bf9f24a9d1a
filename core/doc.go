// Package core defines the canonical data model shared by every part of the
// runtime: conversation messages, streaming deltas, request/response
// envelopes, tool descriptions and the session/profile records that get
// persisted. All gateway backends normalize into these types so the
// orchestration loop never needs per-provider branching.
package core
