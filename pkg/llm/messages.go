// Message types and functionality
package llm

import (
	"encoding/json"
	"fmt"
)

// Message represents a single chat message. All content, including tool
// calls and tool results, is carried as an ordered sequence of content
// blocks so provider adapters can map each block to their own wire
// vocabulary without losing ordering.
type Message struct {
	Role    MessageRole      `json:"role"`
	Content []MessageContent `json:"content"`
}

// MessageRole defines the role of a message sender
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// NewTextMessage creates a new Message with a single text block
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: []MessageContent{NewTextContent(text)},
	}
}

// NewToolCallMessage creates an assistant message carrying tool calls
func NewToolCallMessage(calls ...*ToolCallContent) Message {
	msg := Message{Role: RoleAssistant}
	for _, call := range calls {
		msg.Content = append(msg.Content, call)
	}
	return msg
}

// NewToolResultMessage creates a tool message carrying execution results
func NewToolResultMessage(results ...*ToolResultContent) Message {
	msg := Message{Role: RoleTool}
	for _, result := range results {
		msg.Content = append(msg.Content, result)
	}
	return msg
}

// GetText concatenates the text of all text blocks in the message.
// Returns empty string if the message has no text blocks.
func (m Message) GetText() string {
	var text string
	for _, content := range m.Content {
		if textContent, ok := content.(*TextContent); ok {
			text += textContent.GetText()
		}
	}
	return text
}

// SetText sets the message content to a single text block, replacing
// all existing content
func (m *Message) SetText(text string) {
	m.Content = []MessageContent{NewTextContent(text)}
}

// IsTextOnly checks if the message contains only text content
func (m Message) IsTextOnly() bool {
	if len(m.Content) == 0 {
		return false
	}

	for _, content := range m.Content {
		if content.Type() != MessageTypeText {
			return false
		}
	}
	return true
}

// GetContentByType returns all content blocks of the specified type
func (m Message) GetContentByType(messageType MessageType) []MessageContent {
	var result []MessageContent
	for _, content := range m.Content {
		if content.Type() == messageType {
			result = append(result, content)
		}
	}
	return result
}

// HasContentType checks if the message contains any block of the specified type
func (m Message) HasContentType(messageType MessageType) bool {
	for _, content := range m.Content {
		if content.Type() == messageType {
			return true
		}
	}
	return false
}

// ToolCalls returns all tool call blocks in the message, in order
func (m Message) ToolCalls() []*ToolCallContent {
	var calls []*ToolCallContent
	for _, content := range m.Content {
		if call, ok := content.(*ToolCallContent); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ToolResults returns all tool result blocks in the message, in order
func (m Message) ToolResults() []*ToolResultContent {
	var results []*ToolResultContent
	for _, content := range m.Content {
		if result, ok := content.(*ToolResultContent); ok {
			results = append(results, result)
		}
	}
	return results
}

// HasToolCalls checks if the message contains any tool call blocks
func (m Message) HasToolCalls() bool {
	return m.HasContentType(MessageTypeToolCall)
}

// TotalSize returns the sum of all content block sizes
func (m Message) TotalSize() int64 {
	var total int64
	for _, content := range m.Content {
		total += content.Size()
	}
	return total
}

// AddContent adds a content block to the message
func (m *Message) AddContent(content MessageContent) {
	if m.Content == nil {
		m.Content = make([]MessageContent, 0)
	}
	m.Content = append(m.Content, content)
}

// Validate validates all content blocks in the message
func (m Message) Validate() error {
	for i, content := range m.Content {
		if err := content.Validate(); err != nil {
			return fmt.Errorf("content item %d validation failed: %w", i, err)
		}
	}
	return nil
}

// ValidateToolPairing checks that every tool result block in the
// conversation references a tool call block that appeared earlier.
func ValidateToolPairing(messages []Message) error {
	seen := make(map[string]bool)
	for i, msg := range messages {
		for _, content := range msg.Content {
			switch block := content.(type) {
			case *ToolCallContent:
				seen[block.ID] = true
			case *ToolResultContent:
				if !seen[block.ID] {
					return NewValidationError(fmt.Sprintf(
						"message %d: tool result %s has no preceding tool call", i, block.ID))
				}
			}
		}
	}
	return nil
}

// DeepCopy creates a deep copy of the message and all its content
// blocks, so modifications to the copy never affect the original.
func (m Message) DeepCopy() Message {
	copied := Message{
		Role: m.Role,
	}

	if len(m.Content) > 0 {
		copied.Content = make([]MessageContent, 0, len(m.Content))
		for _, content := range m.Content {
			copied.Content = append(copied.Content, deepCopyMessageContent(content))
		}
	}

	return copied
}

// deepCopyMessageContent creates a deep copy of a content block based on its type
func deepCopyMessageContent(content MessageContent) MessageContent {
	if content == nil {
		return nil
	}

	switch c := content.(type) {
	case *TextContent:
		return &TextContent{
			Text: c.Text,
		}
	case *ToolCallContent:
		var argsCopy json.RawMessage
		if len(c.Arguments) > 0 {
			argsCopy = make(json.RawMessage, len(c.Arguments))
			copy(argsCopy, c.Arguments)
		}
		return &ToolCallContent{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: argsCopy,
		}
	case *ToolResultContent:
		var itemsCopy []ResultItem
		if len(c.Content) > 0 {
			itemsCopy = make([]ResultItem, 0, len(c.Content))
			for _, item := range c.Content {
				itemCopy := item
				if len(item.Value) > 0 {
					itemCopy.Value = make(json.RawMessage, len(item.Value))
					copy(itemCopy.Value, item.Value)
				}
				itemsCopy = append(itemsCopy, itemCopy)
			}
		}
		return &ToolResultContent{
			ID:      c.ID,
			Content: itemsCopy,
			IsError: c.IsError,
		}
	case *ImageContent:
		var dataCopy []byte
		if len(c.Data) > 0 {
			dataCopy = make([]byte, len(c.Data))
			copy(dataCopy, c.Data)
		}
		return &ImageContent{
			Data:     dataCopy,
			URL:      c.URL,
			MimeType: c.MimeType,
		}
	case *FileContent:
		var dataCopy []byte
		if len(c.Data) > 0 {
			dataCopy = make([]byte, len(c.Data))
			copy(dataCopy, c.Data)
		}
		return &FileContent{
			Data:     dataCopy,
			URL:      c.URL,
			MimeType: c.MimeType,
			Filename: c.Filename,
		}
	default:
		// Unknown content types degrade to their JSON text form rather
		// than sharing mutable state with the original.
		jsonData, err := json.Marshal(content)
		if err != nil {
			return &TextContent{Text: "[DeepCopy Error: Could not copy unknown content type]"}
		}
		return &TextContent{Text: string(jsonData)}
	}
}

// MarshalJSON implements custom JSON marshaling for Message
func (m Message) MarshalJSON() ([]byte, error) {
	type Alias Message

	temp := struct {
		Alias
		Content []json.RawMessage `json:"content"`
	}{
		Alias: (Alias)(m),
	}

	if len(m.Content) > 0 {
		temp.Content = make([]json.RawMessage, len(m.Content))
		for i, content := range m.Content {
			contentBytes, err := json.Marshal(content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content item %d: %w", i, err)
			}
			temp.Content[i] = contentBytes
		}
	}

	return json.Marshal(temp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message

	temp := struct {
		*Alias
		Content []json.RawMessage `json:"content"`
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	if len(temp.Content) > 0 {
		m.Content = make([]MessageContent, 0, len(temp.Content))

		for i, contentBytes := range temp.Content {
			var typeChecker struct {
				Type MessageType `json:"type"`
			}

			if err := json.Unmarshal(contentBytes, &typeChecker); err != nil {
				return fmt.Errorf("failed to determine type for content item %d: %w", i, err)
			}

			var content MessageContent
			switch typeChecker.Type {
			case MessageTypeText:
				content = &TextContent{}
			case MessageTypeToolCall:
				content = &ToolCallContent{}
			case MessageTypeToolResult:
				content = &ToolResultContent{}
			case MessageTypeImage:
				content = &ImageContent{}
			case MessageTypeFile:
				content = &FileContent{}
			default:
				return fmt.Errorf("unsupported content type: %s", typeChecker.Type)
			}

			if err := json.Unmarshal(contentBytes, content); err != nil {
				return fmt.Errorf("failed to unmarshal content item %d of type %s: %w", i, typeChecker.Type, err)
			}

			m.Content = append(m.Content, content)
		}
	}

	return nil
}
