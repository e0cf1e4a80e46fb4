// Package mock provides a scripted client implementation for testing
// gateway applications without real provider calls.
//
// The client plays back queued responses, errors, and stream scripts in
// FIFO order and records every request it sees. When all queues are
// empty it falls back to deterministic canned behavior: a text reply
// echoing the last user message, or a summary reply when the
// conversation ends with tool results.
//
// Streaming requests consume the response queue when no stream script
// is queued, replaying the buffered response as deltas, so a single
// scripted conversation drives both the buffered and the streaming
// paths. Latency simulation honors context cancellation.
package mock
