// Core request and response types
package llm

import "fmt"

// Request represents a normalized chat completion request
// (provider-agnostic)
type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDescriptor `json:"tools,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Caller      CallerContext    `json:"caller,omitempty"`
}

// CallerContext identifies who issued a request. The organization id is
// always present; the remaining fields depend on how the caller was
// resolved by the surrounding service.
type CallerContext struct {
	OrganizationID  string `json:"organization_id"`
	AgentID         string `json:"agent_id,omitempty"`
	ExternalAgentID string `json:"external_agent_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
}

// Key returns the caller identity under which tool backend connections
// are cached. Agent id wins when present, falling back to the external
// agent id and finally the organization id.
func (c CallerContext) Key() string {
	if c.AgentID != "" {
		return c.AgentID
	}
	if c.ExternalAgentID != "" {
		return c.ExternalAgentID
	}
	return c.OrganizationID
}

// Validate checks the request is well-formed enough to translate.
func (r Request) Validate() error {
	if r.Model == "" {
		return NewValidationError("request model must not be empty")
	}
	if len(r.Messages) == 0 {
		return NewValidationError("request must carry at least one message")
	}
	for i, msg := range r.Messages {
		if msg.Role == "" {
			return NewValidationError(fmt.Sprintf("message %d has no role", i))
		}
		if err := msg.Validate(); err != nil {
			return NewValidationError(fmt.Sprintf("message %d: %v", i, err))
		}
	}
	return ValidateToolPairing(r.Messages)
}

// Response represents a normalized chat completion response
// (provider-agnostic)
type Response struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Message    Message    `json:"message"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Usage      Usage      `json:"usage,omitempty"`
}

// StopReason describes why the model stopped producing output
type StopReason string

const (
	// StopReasonStop is a natural end of turn.
	StopReasonStop StopReason = "stop"
	// StopReasonToolCalls means the model requested tool execution.
	StopReasonToolCalls StopReason = "tool_calls"
	// StopReasonLength means the output hit a token limit.
	StopReasonLength StopReason = "length"
	// StopReasonToolLoop marks a turn that ended because a tool call id
	// repeated; the response still carries the best available text.
	StopReasonToolLoop StopReason = "tool_loop_detected"
	// StopReasonRoundLimit marks a turn that hit the tool round cap;
	// the response still carries the best available text.
	StopReasonRoundLimit StopReason = "tool_round_limit"
)

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another round's usage into u
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// RequiresToolExecution checks if this response requests tool execution
// before the turn can continue
func (r Response) RequiresToolExecution() bool {
	return r.StopReason == StopReasonToolCalls || r.Message.HasToolCalls()
}

// ToolCalls returns all tool call blocks in the response message
func (r Response) ToolCalls() []*ToolCallContent {
	return r.Message.ToolCalls()
}

// Text returns the assistant text of the response
func (r Response) Text() string {
	return r.Message.GetText()
}

// DeepCopy creates a deep copy of the Response, including the message
// and usage, so modifications to the copy never affect the original.
func (r Response) DeepCopy() Response {
	return Response{
		ID:         r.ID,
		Model:      r.Model,
		Message:    r.Message.DeepCopy(),
		StopReason: r.StopReason,
		Usage: Usage{
			InputTokens:  r.Usage.InputTokens,
			OutputTokens: r.Usage.OutputTokens,
			TotalTokens:  r.Usage.TotalTokens,
		},
	}
}
