// Package store provides persistence for sessions and profiles. The file
// store keeps one indented JSON document per entity under a runtime data
// directory; the in-memory store backs tests and ephemeral setups.
package store
