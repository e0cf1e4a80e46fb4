// Streaming event types for chat completions
package llm

// StreamEventType discriminates the events carried on a response stream.
type StreamEventType string

const (
	// StreamEventDelta carries an incremental piece of assistant text.
	StreamEventDelta StreamEventType = "delta"
	// StreamEventToolCalls carries fully assembled tool calls. Adapters
	// emit this exactly once, after the provider signals that all call
	// argument fragments have arrived; raw fragments never appear on
	// the stream.
	StreamEventToolCalls StreamEventType = "tool_calls"
	// StreamEventDone terminates a successful stream and carries the
	// stop reason and any usage the provider reported.
	StreamEventDone StreamEventType = "done"
	// StreamEventError terminates a failed stream.
	StreamEventError StreamEventType = "error"
)

// StreamEvent represents a single event in a streaming response
type StreamEvent struct {
	Type       StreamEventType    `json:"type"`
	Delta      *MessageDelta      `json:"delta,omitempty"`
	ToolCalls  []*ToolCallContent `json:"tool_calls,omitempty"`
	StopReason StopReason         `json:"stop_reason,omitempty"`
	Usage      *Usage             `json:"usage,omitempty"`
	Error      *Error             `json:"error,omitempty"`
}

// MessageDelta represents an incremental update to the assistant message
type MessageDelta struct {
	Content []MessageContent `json:"content,omitempty"`
}

// Text returns the concatenated text carried by the delta
func (d *MessageDelta) Text() string {
	if d == nil {
		return ""
	}
	var text string
	for _, content := range d.Content {
		if tc, ok := content.(*TextContent); ok {
			text += tc.GetText()
		}
	}
	return text
}

// ToolCallDelta is one provider-specific fragment of an incremental
// tool call. Fragments are fed to a ToolCallAccumulator; they are never
// forwarded downstream.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// IsDelta returns true if this is a text delta event
func (e StreamEvent) IsDelta() bool {
	return e.Type == StreamEventDelta && e.Delta != nil
}

// IsToolCalls returns true if this event carries completed tool calls
func (e StreamEvent) IsToolCalls() bool {
	return e.Type == StreamEventToolCalls && len(e.ToolCalls) > 0
}

// IsDone returns true if this is a done event
func (e StreamEvent) IsDone() bool {
	return e.Type == StreamEventDone
}

// IsError returns true if this is an error event
func (e StreamEvent) IsError() bool {
	return e.Type == StreamEventError && e.Error != nil
}

// NewTextDeltaEvent creates a delta event carrying a piece of text
func NewTextDeltaEvent(text string) StreamEvent {
	return StreamEvent{
		Type: StreamEventDelta,
		Delta: &MessageDelta{
			Content: []MessageContent{NewTextContent(text)},
		},
	}
}

// NewDeltaEvent creates a delta event from an arbitrary message delta
func NewDeltaEvent(delta *MessageDelta) StreamEvent {
	return StreamEvent{
		Type:  StreamEventDelta,
		Delta: delta,
	}
}

// NewToolCallsEvent creates an event carrying completed tool calls
func NewToolCallsEvent(calls []*ToolCallContent) StreamEvent {
	return StreamEvent{
		Type:      StreamEventToolCalls,
		ToolCalls: calls,
	}
}

// NewDoneEvent creates a done event with the final stop reason and
// optional usage totals
func NewDoneEvent(stopReason StopReason, usage *Usage) StreamEvent {
	return StreamEvent{
		Type:       StreamEventDone,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// NewErrorEvent creates an error event. Errors outside the gateway's
// taxonomy are wrapped as upstream failures.
func NewErrorEvent(err error) StreamEvent {
	classified, ok := AsError(err)
	if !ok {
		classified = NewUpstreamError(0, err.Error(), err)
	}
	return StreamEvent{
		Type:  StreamEventError,
		Error: classified,
	}
}
