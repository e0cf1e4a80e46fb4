// Incremental tool call assembly for streaming responses
package llm

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ToolCallAccumulator reconstructs complete tool calls from the
// incremental fragments a provider stream delivers. Fragments arrive
// keyed by call index; id and name usually arrive on the first
// fragment, argument JSON accumulates across the rest. Accumulators
// are not safe for concurrent use; each stream owns its own.
type ToolCallAccumulator struct {
	pending map[int]*pendingToolCall
}

type pendingToolCall struct {
	id        string
	name      string
	arguments []byte
}

// NewToolCallAccumulator creates an empty accumulator
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		pending: make(map[int]*pendingToolCall),
	}
}

// Add folds one fragment into the accumulator
func (a *ToolCallAccumulator) Add(delta ToolCallDelta) {
	call, ok := a.pending[delta.Index]
	if !ok {
		call = &pendingToolCall{}
		a.pending[delta.Index] = call
	}
	if delta.ID != "" {
		call.id = delta.ID
	}
	if delta.Name != "" {
		call.name = delta.Name
	}
	if delta.Arguments != "" {
		call.arguments = append(call.arguments, delta.Arguments...)
	}
}

// HasCalls reports whether any fragments have been accumulated
func (a *ToolCallAccumulator) HasCalls() bool {
	return len(a.pending) > 0
}

// Complete assembles the accumulated fragments into finished tool
// calls, ordered by call index. It must be called only once the
// provider signals the fragment stream is finished. Arguments that do
// not form valid JSON by then are a malformed-stream decode failure,
// never silently dropped.
func (a *ToolCallAccumulator) Complete() ([]*ToolCallContent, error) {
	if len(a.pending) == 0 {
		return nil, nil
	}

	indexes := make([]int, 0, len(a.pending))
	for idx := range a.pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]*ToolCallContent, 0, len(indexes))
	for _, idx := range indexes {
		call := a.pending[idx]
		if call.name == "" {
			return nil, NewMalformedStreamError(
				fmt.Sprintf("tool call at index %d ended without a name", idx), nil)
		}
		args := call.arguments
		if len(args) == 0 {
			args = []byte(`{}`)
		}
		if !json.Valid(args) {
			return nil, NewMalformedStreamError(
				fmt.Sprintf("tool call %s ended with incomplete JSON arguments", call.name), nil)
		}
		calls = append(calls, NewToolCallContent(call.id, call.name, json.RawMessage(args)))
	}
	return calls, nil
}

// Reset clears the accumulator for reuse within the same stream
func (a *ToolCallAccumulator) Reset() {
	a.pending = make(map[int]*pendingToolCall)
}
