// Package gemini adapts the unified message model to the Gemini
// generateContent wire protocol.
//
// The protocol differs from the OpenAI-style APIs in two ways that
// shape this adapter. System text does not travel as a message; it is
// extracted into the request's system_instruction field. And function
// calls carry no wire-level ids: the protocol pairs calls with their
// responses by function name and position, so the adapter synthesizes
// stable name-ordinal ids when decoding responses and resolves tool
// results back to plain functionResponse parts, recovering the
// function name from the originating call.
//
// Streaming responses deliver function calls as complete parts rather
// than argument fragments. Text deltas are forwarded live; collected
// calls surface as one tool-calls event before the stream finishes.
package gemini
