// Package proxy is the top-level orchestrator: it receives a normalized
// request, drives it through a protocol client, and intercepts the
// model's tool calls, executing them against the tool backend and
// folding the results back into the conversation until the turn ends.
//
// A turn moves through a fixed sequence: pre-flight checks (request
// validation, token estimation, the limiter), the upstream call, and
// zero or more tool rounds. Each round executes all requested calls
// independently, applies per-tool response templates, appends the
// results, and calls upstream again with the extended conversation.
//
// Two guards bound the loop. A call id that repeats one already
// executed in the same turn ends it immediately; a configurable round
// cap (default 5) ends it after too many rounds. Both end the turn
// gracefully with the best available assistant text and a marker stop
// reason rather than failing the request.
//
// Streaming turns forward text deltas to the caller as they arrive,
// across every round; tool calls never surface as raw provider syntax.
// Usage totals accumulate across rounds and are handed to the usage
// reporter fire-and-forget after the response is finalized.
//
// Collaborators (limiter, usage reporter, template source, tool
// executor) are injected interfaces with no-op defaults, so a bare
// proxy acts as a plain translation pass-through: without an executor,
// tool calls are handed to the caller unexecuted.
package proxy
