// Package gateway defines the capability contract every model backend must
// satisfy: one-shot invocation, streaming invocation and model listing.
// Concrete backends live in subpackages (openai, openrouter, deepseek,
// anthropic) and normalize their provider's wire format into core types.
//
// Stream ordering contract: content fragments arrive in emission order and
// must be concatenated, never reordered; at most one delta per request
// carries a finish reason and no delta follows it; usage counters may be
// split across deltas and must be summed by accumulators.
package gateway
