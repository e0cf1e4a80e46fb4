// Tool catalog and execution result types
package llm

import (
	"encoding/json"
	"strings"
)

// ToolDescriptor describes one tool the model may call. Names are
// unique within a request's catalog. InputSchema is always exposed
// upstream as a well-formed object schema; use Normalized before
// encoding it into a provider request.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Normalized returns a copy of the descriptor whose InputSchema is
// guaranteed to be a well-formed object schema. Missing or invalid
// schemas are replaced, never rejected.
func (t ToolDescriptor) Normalized() ToolDescriptor {
	t.InputSchema = NormalizeToolSchema(t.InputSchema)
	return t
}

// Validate checks the descriptor carries a usable name.
func (t ToolDescriptor) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return NewValidationError("tool descriptor must have a name")
	}
	return nil
}

// NormalizeCatalog returns the catalog with every schema normalized and
// rejects duplicate tool names.
func NormalizeCatalog(tools []ToolDescriptor) ([]ToolDescriptor, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(tools))
	out := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if err := tool.Validate(); err != nil {
			return nil, err
		}
		if seen[tool.Name] {
			return nil, NewValidationError("duplicate tool name " + tool.Name)
		}
		seen[tool.Name] = true
		out = append(out, tool.Normalized())
	}
	return out, nil
}

// ToolExecutionResult is the outcome of one tool invocation as produced
// by the tool gateway, before any response modifier template runs.
type ToolExecutionResult struct {
	ID      string       `json:"id"`
	Content []ResultItem `json:"content"`
	IsError bool         `json:"is_error,omitempty"`
}

// AsContent folds the execution result into a tool result content block.
func (r ToolExecutionResult) AsContent() *ToolResultContent {
	return NewToolResultContent(r.ID, r.Content, r.IsError)
}

// Text joins the text items of the result, one per line.
func (r ToolExecutionResult) Text() string {
	return r.AsContent().GetText()
}
