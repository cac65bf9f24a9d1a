// Package mcp bridges external Model Context Protocol servers into the tool
// subsystem. A single background worker owns the stdio client connections;
// callers hand their requests to the worker and block until the reply
// arrives, so the synchronous tool API never touches the clients directly.
package mcp
