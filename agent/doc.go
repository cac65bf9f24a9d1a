// Package agent implements the conversation loop: a TaskAgent owns one
// session, streams model output, interleaves tool execution and persists
// the resulting history. Agents can also be wrapped as callable tools so
// one agent may delegate work to another.
package agent
