// Package openai adapts the unified message model to the OpenAI Chat
// Completions wire protocol.
//
// The adapter is pure translation around a single outbound call: it
// encodes unified requests into Chat Completions shapes, decodes
// responses back, and passes upstream failures through with their
// status code and body intact. It never retries. Any OpenAI-compatible
// endpoint can be served by pointing ClientConfig.BaseURL at it.
//
// Tool calls keep their provider-assigned ids verbatim in both
// directions. On streams, tool-call argument fragments are assembled
// internally and emitted as one completed tool-calls event; consumers
// never see raw provider fragments.
package openai
