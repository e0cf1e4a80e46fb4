package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// DefaultMaxTokens is applied when the request does not set a limit;
// the Messages API requires max_tokens on every call.
const DefaultMaxTokens = 4096

// Client implements the llm.Client interface for the Anthropic Messages
// protocol
type Client struct {
	client *anthropic.Client
	model  string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new Anthropic Messages client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, llm.NewValidationError("API key is required for anthropic")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	model := config.Model
	if model == "" {
		model = llm.DefaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)

	return &Client{
		client: &client,
		model:  model,
	}, nil
}

// ChatCompletion performs a buffered request against the Messages API
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.client.Messages.New(ctx, c.convertRequest(req))
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion opens a streaming request against the Messages
// API. Text deltas are forwarded live while the SDK accumulator
// reassembles the full message; completed tool calls surface as one
// event at stream end.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.convertRequest(req))

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				ch <- llm.NewErrorEvent(llm.NewMalformedStreamError("failed to accumulate stream event", err))
				return
			}

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					ch <- llm.NewTextDeltaEvent(deltaVariant.Text)
				}
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.NewErrorEvent(c.convertError(err))
			return
		}

		final := c.convertResponse(&message)

		if calls := final.ToolCalls(); len(calls) > 0 {
			for _, call := range calls {
				if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
					ch <- llm.NewErrorEvent(llm.NewMalformedStreamError(
						fmt.Sprintf("tool call %s ended with incomplete JSON input", call.Name), nil))
					return
				}
			}
			ch <- llm.NewToolCallsEvent(calls)
		}

		usage := final.Usage
		ch <- llm.NewDoneEvent(final.StopReason, &usage)
	}()

	return ch, nil
}

// Remote returns information about the remote endpoint
func (c *Client) Remote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "anthropic",
	}

	now := time.Now()
	needsRefresh := c.lastHealthCheck == nil ||
		now.Sub(*c.lastHealthCheck) >= llm.DefaultHealthCheckInterval

	if needsRefresh {
		healthy := c.performHealthCheck()
		c.lastHealthStatus = &healthy
		c.lastHealthCheck = &now
	}

	info.Status = &llm.ClientRemoteInfoStatus{
		Healthy:     c.lastHealthStatus,
		LastChecked: c.lastHealthCheck,
	}

	return info
}

// performHealthCheck performs a simple health check on the Anthropic API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	return err == nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	return nil
}

// convertRequest converts our Request into Messages API parameters
func (c *Client) convertRequest(req llm.Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages, system := c.convertMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(DefaultMaxTokens),
	}
	if req.MaxTokens != nil {
		params.MaxTokens = int64(*req.MaxTokens)
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(float64(*req.TopP))
	}

	for _, tool := range req.Tools {
		normalized := tool.Normalized()
		converted := anthropic.ToolUnionParamOfTool(toolInputSchema(normalized.InputSchema), normalized.Name)
		if normalized.Description != "" {
			converted.OfTool.Description = anthropic.String(normalized.Description)
		}
		params.Tools = append(params.Tools, converted)
	}

	return params
}

// toolInputSchema decomposes a normalized object schema into the typed
// input_schema parameter; the type field defaults to object
func toolInputSchema(schema json.RawMessage) anthropic.ToolInputSchemaParam {
	var decoded struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	_ = json.Unmarshal(schema, &decoded)

	out := anthropic.ToolInputSchemaParam{Properties: decoded.Properties}
	if len(decoded.Required) > 0 {
		out.Required = decoded.Required
	}
	return out
}

// convertMessages converts our messages to Messages API format. System
// messages are extracted into the separate system field; tool results
// become tool_result blocks inside a user message, as the protocol
// requires.
func (c *Client) convertMessages(messages []llm.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetText(); strings.TrimSpace(text) != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
			}

		case llm.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, result := range msg.ToolResults() {
				blocks = append(blocks, convertToolResult(result))
			}
			if len(blocks) > 0 {
				anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(blocks...))
			}

		case llm.RoleAssistant:
			blocks := convertBlocks(msg)
			if len(blocks) > 0 {
				anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(blocks...))
			}

		default:
			blocks := convertBlocks(msg)
			if len(blocks) == 0 {
				// The API rejects messages without content
				blocks = []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(" ")}
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(blocks...))
		}
	}

	return anthropicMsgs, systemBlocks
}

// convertBlocks maps text, image and tool-call content into protocol
// blocks. Empty text blocks are dropped; the API rejects them.
func convertBlocks(msg llm.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion

	for _, content := range msg.Content {
		switch block := content.(type) {
		case *llm.TextContent:
			if strings.TrimSpace(block.Text) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			}
		case *llm.ImageContent:
			blocks = append(blocks, convertImage(block))
		case *llm.ToolCallContent:
			blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Arguments, block.Name))
		}
	}

	return blocks
}

// convertImage encodes image content as a base64 or URL source block
func convertImage(image *llm.ImageContent) anthropic.ContentBlockParamUnion {
	if image.URL != "" {
		return anthropic.ContentBlockParamUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfURL: &anthropic.URLImageSourceParam{URL: image.URL},
				},
			},
		}
	}
	return anthropic.NewImageBlockBase64(image.MimeType, base64.StdEncoding.EncodeToString(image.Data))
}

// convertToolResult folds one execution result into a tool_result
// block, preserving text and image items natively; structured items
// travel as their JSON text so nothing is silently dropped
func convertToolResult(result *llm.ToolResultContent) anthropic.ContentBlockParamUnion {
	var parts []anthropic.ToolResultBlockParamContentUnion

	for _, item := range result.Content {
		switch {
		case item.Type == "text":
			text := item.Text
			if text == "" {
				text = " "
			}
			parts = append(parts, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: text},
			})
		case item.Type == "image" && item.Data != "":
			parts = append(parts, anthropic.ToolResultBlockParamContentUnion{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      item.Data,
							MediaType: anthropic.Base64ImageSourceMediaType(item.MimeType),
						},
					},
				},
			})
		case len(item.Value) > 0:
			parts = append(parts, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: string(item.Value)},
			})
		default:
			encoded, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: string(encoded)},
			})
		}
	}
	if len(parts) == 0 {
		parts = append(parts, anthropic.ToolResultBlockParamContentUnion{
			OfText: &anthropic.TextBlockParam{Text: " "},
		})
	}

	block := &anthropic.ToolResultBlockParam{
		ToolUseID: result.ID,
		Content:   parts,
	}
	if result.IsError {
		block.IsError = anthropic.Bool(true)
	}

	return anthropic.ContentBlockParamUnion{OfToolResult: block}
}

// convertResponse converts a Messages API response to our format
func (c *Client) convertResponse(resp *anthropic.Message) *llm.Response {
	response := &llm.Response{
		ID:    resp.ID,
		Model: string(resp.Model),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		StopReason: llm.StopReasonStop,
	}

	message := llm.Message{Role: llm.RoleAssistant, Content: []llm.MessageContent{}}
	for _, block := range resp.Content {
		switch blockVariant := block.AsAny().(type) {
		case anthropic.TextBlock:
			message.Content = append(message.Content, llm.NewTextContent(blockVariant.Text))
		case anthropic.ToolUseBlock:
			message.Content = append(message.Content,
				llm.NewToolCallContent(blockVariant.ID, blockVariant.Name, json.RawMessage(blockVariant.Input)))
		}
	}
	response.Message = message

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		response.StopReason = llm.StopReasonToolCalls
	case anthropic.StopReasonMaxTokens:
		response.StopReason = llm.StopReasonLength
	}
	if message.HasToolCalls() {
		response.StopReason = llm.StopReasonToolCalls
	}

	return response
}

// convertError passes upstream failures through unmodified; the adapter
// never retries on the caller's behalf
func (c *Client) convertError(err error) *llm.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewUpstreamError(apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return llm.NewUpstreamError(0, err.Error(), err)
}
