// Package anthropic adapts the unified message model to the Anthropic
// Messages wire protocol.
//
// The Messages protocol differs from the OpenAI family in three ways
// the adapter flattens away: system text travels as a separate request
// field rather than a message, tool results are content blocks inside a
// user-role message rather than a dedicated role, and tool-use ids are
// carried on content blocks in both directions. Provider-assigned ids
// pass through verbatim.
//
// Streams are assembled with the SDK's message accumulator: text deltas
// are forwarded live, and tool calls surface as one completed
// tool-calls event once the accumulated message is final. Tool input
// that never forms valid JSON by stream end is a malformed-stream
// failure.
package anthropic
