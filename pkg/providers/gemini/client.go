package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// safeIntToInt32 safely converts int to int32
func safeIntToInt32(val int) int32 {
	if val > 2147483647 {
		return 2147483647
	}
	if val < -2147483648 {
		return -2147483648
	}
	return int32(val)
}

// Client implements the llm.Client interface for the Gemini
// generateContent protocol
type Client struct {
	client *genai.Client
	model  string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new Gemini client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, llm.NewValidationError("API key is required for gemini")
	}

	model := config.Model
	if model == "" {
		model = llm.DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPOptions.Timeout = &config.Timeout
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("failed to create gemini client: %v", err))
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// ChatCompletion performs a buffered generateContent request
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	contents, config, err := c.convertRequest(req)
	if err != nil {
		return nil, err
	}
	history, parts := splitContents(contents)

	chat, err := c.client.Chats.Create(ctx, c.modelFor(req), config, history)
	if err != nil {
		return nil, c.convertError(err)
	}

	resp, err := chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion opens a streaming generateContent request. The
// API streams function calls as complete parts, so they are collected
// as they arrive and emitted as one tool-calls event at stream end.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	contents, config, err := c.convertRequest(req)
	if err != nil {
		return nil, err
	}
	history, parts := splitContents(contents)

	chat, err := c.client.Chats.Create(ctx, c.modelFor(req), config, history)
	if err != nil {
		return nil, c.convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)

		var calls []*llm.ToolCallContent
		var usage *llm.Usage
		stopReason := llm.StopReasonStop

		for resp, err := range chat.SendMessageStream(ctx, parts...) {
			if err != nil {
				ch <- llm.NewErrorEvent(c.convertError(err))
				return
			}

			if resp.UsageMetadata != nil {
				usage = convertUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}

			candidate := resp.Candidates[0]
			if candidate.FinishReason == genai.FinishReasonMaxTokens {
				stopReason = llm.StopReasonLength
			}
			if candidate.Content == nil {
				continue
			}

			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					calls = append(calls, convertFunctionCall(part.FunctionCall, len(calls)))
				case part.Text != "":
					ch <- llm.NewTextDeltaEvent(part.Text)
				}
			}
		}

		if len(calls) > 0 {
			ch <- llm.NewToolCallsEvent(calls)
			stopReason = llm.StopReasonToolCalls
		}
		ch <- llm.NewDoneEvent(stopReason, usage)
	}()

	return ch, nil
}

// Remote returns information about the remote endpoint
func (c *Client) Remote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "gemini",
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

// performHealthCheck performs a minimal generation probe against the
// Gemini API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := &genai.GenerateContentConfig{MaxOutputTokens: 1}
	chat, err := c.client.Chats.Create(ctx, c.model, config, nil)
	if err != nil {
		return false
	}

	_, err = chat.SendMessage(ctx, *genai.NewPartFromText("ping"))
	return err == nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// The genai client does not expose a Close method
	return nil
}

func (c *Client) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// convertRequest converts our Request into generateContent contents
// and config
func (c *Client) convertRequest(req llm.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = req.Temperature
	}
	if req.TopP != nil {
		config.TopP = req.TopP
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = safeIntToInt32(*req.MaxTokens)
	}

	contents, system := c.convertMessages(req.Messages)
	if len(contents) == 0 {
		return nil, nil, llm.NewValidationError("request has no convertible messages")
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, descriptor := range req.Tools {
			normalized := descriptor.Normalized()
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        normalized.Name,
				Description: normalized.Description,
				Parameters:  convertSchema(normalized.InputSchema),
			})
		}
		config.Tools = []*genai.Tool{tool}
	}

	return contents, config, nil
}

// splitContents separates the conversation into chat history and the
// parts of the final turn, which the chat session sends as the
// current input
func splitContents(contents []*genai.Content) ([]*genai.Content, []genai.Part) {
	var history []*genai.Content
	if len(contents) > 1 {
		history = contents[:len(contents)-1]
	}

	last := contents[len(contents)-1]
	parts := make([]genai.Part, len(last.Parts))
	for i, part := range last.Parts {
		parts[i] = *part
	}
	return history, parts
}

// jsonSchema is the subset of JSON Schema the declaration converter
// understands
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
}

// convertSchema converts a JSON Schema document into the typed Schema
// the API expects. Malformed documents degrade to a bare object schema
// instead of failing the whole declaration.
func convertSchema(raw json.RawMessage) *genai.Schema {
	var decoded jsonSchema
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return convertSchemaNode(&decoded)
}

func convertSchemaNode(node *jsonSchema) *genai.Schema {
	schema := &genai.Schema{
		Description: node.Description,
		Required:    node.Required,
	}

	switch node.Type {
	case "object":
		schema.Type = genai.TypeObject
	case "array":
		schema.Type = genai.TypeArray
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeString
	}

	if node.Items != nil {
		schema.Items = convertSchemaNode(node.Items)
	}
	for name, property := range node.Properties {
		if schema.Properties == nil {
			schema.Properties = make(map[string]*genai.Schema)
		}
		schema.Properties[name] = convertSchemaNode(property)
	}

	return schema
}

// convertMessages converts our messages to generateContent contents.
// System text is pulled out for the system_instruction field. Tool
// results become functionResponse parts; the function name is
// recovered from the originating call, since results carry only the
// call id and the wire pairs by name.
func (c *Client) convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var systemParts []string
	var contents []*genai.Content
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetText(); strings.TrimSpace(text) != "" {
				systemParts = append(systemParts, text)
			}

		case llm.RoleTool:
			var parts []*genai.Part
			for _, result := range msg.ToolResults() {
				parts = append(parts, convertToolResult(result, callNames[result.ID]))
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}

		case llm.RoleAssistant:
			for _, call := range msg.ToolCalls() {
				callNames[call.ID] = call.Name
			}
			if parts := convertParts(msg); len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		default:
			parts := convertParts(msg)
			if len(parts) == 0 {
				// The API rejects contents without parts
				parts = []*genai.Part{genai.NewPartFromText(" ")}
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		}
	}

	return contents, strings.Join(systemParts, "\n\n")
}

// convertParts maps text, image and tool-call content onto parts.
// Empty text parts are dropped; the API rejects them.
func convertParts(msg llm.Message) []*genai.Part {
	var parts []*genai.Part

	for _, content := range msg.Content {
		switch block := content.(type) {
		case *llm.TextContent:
			if strings.TrimSpace(block.Text) != "" {
				parts = append(parts, genai.NewPartFromText(block.Text))
			}
		case *llm.ImageContent:
			parts = append(parts, convertImage(block))
		case *llm.ToolCallContent:
			parts = append(parts, convertToolCall(block))
		}
	}

	return parts
}

// convertToolCall rebuilds a functionCall part; arguments decode back
// into the structured map the API expects. The synthetic call id stays
// on our side of the wire.
func convertToolCall(call *llm.ToolCallContent) *genai.Part {
	args := make(map[string]any)
	_ = json.Unmarshal(call.Arguments, &args)
	return genai.NewPartFromFunctionCall(call.Name, args)
}

// convertToolResult folds one execution result into a functionResponse
// part keyed by outcome
func convertToolResult(result *llm.ToolResultContent, name string) *genai.Part {
	if name == "" {
		name = result.ID
	}

	key := "output"
	if result.IsError {
		key = "error"
	}

	return genai.NewPartFromFunctionResponse(name, map[string]any{key: encodeResultContent(result)})
}

// convertImage encodes image content as inline bytes or a file
// reference
func convertImage(image *llm.ImageContent) *genai.Part {
	if image.URL != "" {
		return genai.NewPartFromURI(image.URL, image.MimeType)
	}
	return genai.NewPartFromBytes(image.Data, image.MimeType)
}

// encodeResultContent renders a tool execution result as text.
// Text-only results travel verbatim; anything richer travels as the
// JSON encoding of the item list so nothing is silently dropped.
func encodeResultContent(result *llm.ToolResultContent) string {
	textOnly := true
	for _, item := range result.Content {
		if item.Type != "text" {
			textOnly = false
			break
		}
	}

	if textOnly {
		if text := result.GetText(); text != "" {
			return text
		}
		return " "
	}

	encoded, err := json.Marshal(result.Content)
	if err != nil {
		return " "
	}
	return string(encoded)
}

// convertResponse converts a generateContent response to our format
func (c *Client) convertResponse(resp *genai.GenerateContentResponse) *llm.Response {
	response := &llm.Response{
		ID:         fmt.Sprintf("gemini-%s", time.Now().Format(time.RFC3339Nano)),
		Model:      c.model,
		StopReason: llm.StopReasonStop,
	}
	if usage := convertUsage(resp.UsageMetadata); usage != nil {
		response.Usage = *usage
	}

	message := llm.Message{Role: llm.RoleAssistant, Content: []llm.MessageContent{}}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate.FinishReason == genai.FinishReasonMaxTokens {
			response.StopReason = llm.StopReasonLength
		}

		if candidate.Content != nil {
			ordinal := 0
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					message.Content = append(message.Content, convertFunctionCall(part.FunctionCall, ordinal))
					ordinal++
				case part.Text != "":
					message.Content = append(message.Content, llm.NewTextContent(part.Text))
				}
			}
		}
	}
	response.Message = message

	if message.HasToolCalls() {
		response.StopReason = llm.StopReasonToolCalls
	}

	return response
}

// convertFunctionCall maps one functionCall part to a tool-call block.
// The response rarely assigns call ids, so a missing id is synthesized
// from the function name and the call's ordinal within the response,
// which keeps the id stable for result pairing and loop detection.
func convertFunctionCall(call *genai.FunctionCall, ordinal int) *llm.ToolCallContent {
	id := call.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", call.Name, ordinal)
	}

	args, err := json.Marshal(call.Args)
	if err != nil || len(call.Args) == 0 {
		args = []byte(`{}`)
	}

	return llm.NewToolCallContent(id, call.Name, args)
}

// convertUsage maps usage metadata when the API reports it
func convertUsage(metadata *genai.GenerateContentResponseUsageMetadata) *llm.Usage {
	if metadata == nil {
		return nil
	}
	return &llm.Usage{
		InputTokens:  int(metadata.PromptTokenCount),
		OutputTokens: int(metadata.CandidatesTokenCount),
		TotalTokens:  int(metadata.TotalTokenCount),
	}
}

// convertError passes upstream failures through unmodified; the
// adapter never retries on the caller's behalf
func (c *Client) convertError(err error) *llm.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if apiErr.Status != "" {
			body = fmt.Sprintf("%s: %s", apiErr.Status, apiErr.Message)
		}
		return llm.NewUpstreamError(apiErr.Code, body, err)
	}
	return llm.NewUpstreamError(0, err.Error(), err)
}
