// Package responses adapts the unified message model to the OpenAI
// Responses wire protocol.
//
// Unlike Chat Completions, the Responses protocol carries conversation
// input as a typed item list: messages, function_call items and
// function_call_output items are separate entries rather than message
// fields. System text travels out-of-band as instructions. The adapter
// flattens the unified content-block model into that item list on the
// way up and reassembles it on the way down, keeping provider-assigned
// call ids verbatim in both directions.
//
// On streams, output_text deltas are forwarded live while function-call
// argument fragments are assembled internally and emitted as one
// completed tool-calls event before the stream finishes.
package responses
