package gateway

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// convertCatalog turns the backend's tool listing into the unified
// descriptor form, with every schema normalized to a well-formed object
// schema.
func convertCatalog(tools []mcp.Tool) ([]llm.ToolDescriptor, error) {
	descriptors := make([]llm.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		schema := json.RawMessage(tool.RawInputSchema)
		if len(schema) == 0 {
			encoded, err := json.Marshal(tool.InputSchema)
			if err == nil {
				schema = encoded
			}
		}
		descriptors = append(descriptors, llm.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return llm.NormalizeCatalog(descriptors)
}

// convertContent maps the backend's typed content items into result
// items. Text and binary items map directly; anything else is carried
// structurally so no content type is ever silently dropped.
func convertContent(content []mcp.Content) []llm.ResultItem {
	items := make([]llm.ResultItem, 0, len(content))
	for _, entry := range content {
		if text, ok := mcp.AsTextContent(entry); ok {
			items = append(items, llm.NewTextResultItem(text.Text))
			continue
		}
		if image, ok := mcp.AsImageContent(entry); ok {
			items = append(items, llm.NewBinaryResultItem("image", image.Data, image.MIMEType))
			continue
		}
		if audio, ok := mcp.AsAudioContent(entry); ok {
			items = append(items, llm.NewBinaryResultItem("audio", audio.Data, audio.MIMEType))
			continue
		}
		if raw, err := json.Marshal(entry); err == nil {
			items = append(items, llm.NewStructuredResultItem(raw))
		}
	}
	return items
}
