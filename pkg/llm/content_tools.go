package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ToolCallContent represents a tool invocation requested by the model.
// The id is assigned by the provider and preserved verbatim across
// encode/decode so results can be paired with their originating call.
type ToolCallContent struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewToolCallContent creates a new ToolCallContent instance. Empty
// arguments are normalized to an empty JSON object.
func NewToolCallContent(id, name string, arguments json.RawMessage) *ToolCallContent {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	return &ToolCallContent{
		ID:        id,
		Name:      name,
		Arguments: arguments,
	}
}

// Type returns the content block type for tool calls
func (t *ToolCallContent) Type() MessageType {
	return MessageTypeToolCall
}

// Validate checks if the tool call is valid
func (t *ToolCallContent) Validate() error {
	if t == nil {
		return errors.New("tool call content cannot be nil")
	}
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tool call must have an id")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tool call must have a name")
	}
	if len(t.Arguments) > 0 && !json.Valid(t.Arguments) {
		return errors.New("tool call arguments must be valid JSON")
	}
	return nil
}

// Size returns the byte size of the serialized arguments
func (t *ToolCallContent) Size() int64 {
	if t == nil {
		return 0
	}
	return int64(len(t.Arguments))
}

// ArgumentsMap decodes the call arguments into a generic map.
func (t *ToolCallContent) ArgumentsMap() (map[string]any, error) {
	args := make(map[string]any)
	if len(t.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(t.Arguments, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// MarshalJSON implements custom JSON marshaling for ToolCallContent
func (t *ToolCallContent) MarshalJSON() ([]byte, error) {
	if t == nil {
		return json.Marshal(nil)
	}

	data := struct {
		Type      MessageType     `json:"type"`
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}{
		Type:      t.Type(),
		ID:        t.ID,
		Name:      t.Name,
		Arguments: t.Arguments,
	}

	return json.Marshal(data)
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolCallContent
func (t *ToolCallContent) UnmarshalJSON(data []byte) error {
	if t == nil {
		return errors.New("cannot unmarshal into nil ToolCallContent")
	}

	var content struct {
		Type      MessageType     `json:"type"`
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}

	if err := json.Unmarshal(data, &content); err != nil {
		return err
	}

	if content.Type != "" && content.Type != MessageTypeToolCall {
		return errors.New("invalid content type for ToolCallContent")
	}

	t.ID = content.ID
	t.Name = content.Name
	t.Arguments = content.Arguments
	return nil
}

// ResultItem is one typed item of a tool's output. Text items carry
// Text; binary items carry base64 Data plus a MIME type; structured
// items carry a raw JSON Value. Non-text items are preserved as-is so
// no tool output is silently flattened away.
type ResultItem struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Data     string          `json:"data,omitempty"`
	MimeType string          `json:"mime_type,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// NewTextResultItem creates a text result item
func NewTextResultItem(text string) ResultItem {
	return ResultItem{Type: "text", Text: text}
}

// NewBinaryResultItem creates a binary result item from base64 data
func NewBinaryResultItem(itemType, data, mimeType string) ResultItem {
	return ResultItem{Type: itemType, Data: data, MimeType: mimeType}
}

// NewStructuredResultItem creates a result item carrying raw JSON
func NewStructuredResultItem(value json.RawMessage) ResultItem {
	return ResultItem{Type: "json", Value: value}
}

// ToolResultContent represents the outcome of one tool execution,
// folded back into the conversation. Its ID pairs it with the tool
// call that produced it.
type ToolResultContent struct {
	ID      string       `json:"id"`
	Content []ResultItem `json:"content"`
	IsError bool         `json:"is_error,omitempty"`
}

// NewToolResultContent creates a new ToolResultContent instance
func NewToolResultContent(id string, content []ResultItem, isError bool) *ToolResultContent {
	return &ToolResultContent{
		ID:      id,
		Content: content,
		IsError: isError,
	}
}

// NewToolResultText creates a tool result with a single text item
func NewToolResultText(id, text string, isError bool) *ToolResultContent {
	return NewToolResultContent(id, []ResultItem{NewTextResultItem(text)}, isError)
}

// Type returns the content block type for tool results
func (t *ToolResultContent) Type() MessageType {
	return MessageTypeToolResult
}

// Validate checks if the tool result is valid
func (t *ToolResultContent) Validate() error {
	if t == nil {
		return errors.New("tool result content cannot be nil")
	}
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tool result must reference a tool call id")
	}
	for i, item := range t.Content {
		if strings.TrimSpace(item.Type) == "" {
			return fmt.Errorf("tool result item %d must have a type", i)
		}
		if len(item.Value) > 0 && !json.Valid(item.Value) {
			return fmt.Errorf("tool result item %d carries invalid JSON", i)
		}
	}
	return nil
}

// Size returns the byte size of all result items
func (t *ToolResultContent) Size() int64 {
	if t == nil {
		return 0
	}
	var total int64
	for _, item := range t.Content {
		total += int64(len(item.Text) + len(item.Data) + len(item.Value))
	}
	return total
}

// GetText joins the text of all text items in the result, one per line.
func (t *ToolResultContent) GetText() string {
	if t == nil {
		return ""
	}
	var parts []string
	for _, item := range t.Content {
		if item.Type == "text" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MarshalJSON implements custom JSON marshaling for ToolResultContent
func (t *ToolResultContent) MarshalJSON() ([]byte, error) {
	if t == nil {
		return json.Marshal(nil)
	}

	data := struct {
		Type    MessageType  `json:"type"`
		ID      string       `json:"id"`
		Content []ResultItem `json:"content"`
		IsError bool         `json:"is_error,omitempty"`
	}{
		Type:    t.Type(),
		ID:      t.ID,
		Content: t.Content,
		IsError: t.IsError,
	}

	return json.Marshal(data)
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolResultContent
func (t *ToolResultContent) UnmarshalJSON(data []byte) error {
	if t == nil {
		return errors.New("cannot unmarshal into nil ToolResultContent")
	}

	var content struct {
		Type    MessageType  `json:"type"`
		ID      string       `json:"id"`
		Content []ResultItem `json:"content"`
		IsError bool         `json:"is_error,omitempty"`
	}

	if err := json.Unmarshal(data, &content); err != nil {
		return err
	}

	if content.Type != "" && content.Type != MessageTypeToolResult {
		return errors.New("invalid content type for ToolResultContent")
	}

	t.ID = content.ID
	t.Content = content.Content
	t.IsError = content.IsError
	return nil
}
