// Content block types and interface
package llm

// MessageContent defines the interface for the content blocks a message
// can carry. The set of implementations is fixed: text, tool call, tool
// result, image and file blocks.
type MessageContent interface {
	// Type returns the content type identifier
	Type() MessageType
	// Validate checks if the content is valid and meets requirements
	Validate() error
	// Size returns the content size in bytes for resource management
	Size() int64
}

// MessageType represents the type of a content block
type MessageType string

// Supported content block types
const (
	MessageTypeText       MessageType = "text"
	MessageTypeToolCall   MessageType = "tool_call"
	MessageTypeToolResult MessageType = "tool_result"
	MessageTypeImage      MessageType = "image"
	MessageTypeFile       MessageType = "file"
)

// IsValidMessageType checks if the given content block type is supported
func IsValidMessageType(msgType MessageType) bool {
	switch msgType {
	case MessageTypeText, MessageTypeToolCall, MessageTypeToolResult,
		MessageTypeImage, MessageTypeFile:
		return true
	default:
		return false
	}
}

// GetSupportedMessageTypes returns all supported content block types
func GetSupportedMessageTypes() []MessageType {
	return []MessageType{
		MessageTypeText,
		MessageTypeToolCall,
		MessageTypeToolResult,
		MessageTypeImage,
		MessageTypeFile,
	}
}
