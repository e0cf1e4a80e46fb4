package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Client implements the llm.Client interface for OpenAI Chat Completions
type Client struct {
	client  *openai.Client
	model   string
	baseURL string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new OpenAI Chat Completions client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, llm.NewValidationError("API key is required for openai")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	model := config.Model
	if model == "" {
		model = llm.DefaultOpenAIModel
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		baseURL: config.BaseURL,
	}, nil
}

// ChatCompletion performs a buffered chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.convertRequest(req))
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion performs a streaming chat completion request.
// Text deltas are forwarded as they arrive; tool-call fragments are
// accumulated and surfaced as a single completed tool-calls event, so
// consumers never see partial provider syntax.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	openaiReq := c.convertRequest(req)
	openaiReq.Stream = true
	openaiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, c.convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		acc := llm.NewToolCallAccumulator()
		stopReason := llm.StopReasonStop
		var usage *llm.Usage

		for {
			response, err := stream.Recv()
			if err == io.EOF {
				if acc.HasCalls() {
					calls, completeErr := acc.Complete()
					if completeErr != nil {
						ch <- llm.NewErrorEvent(completeErr)
						return
					}
					ch <- llm.NewToolCallsEvent(calls)
					stopReason = llm.StopReasonToolCalls
				}
				ch <- llm.NewDoneEvent(stopReason, usage)
				return
			}
			if err != nil {
				ch <- llm.NewErrorEvent(c.convertError(err))
				return
			}

			if response.Usage != nil {
				usage = &llm.Usage{
					InputTokens:  response.Usage.PromptTokens,
					OutputTokens: response.Usage.CompletionTokens,
					TotalTokens:  response.Usage.TotalTokens,
				}
			}

			if len(response.Choices) == 0 {
				continue
			}
			choice := response.Choices[0]

			if choice.Delta.Content != "" {
				ch <- llm.NewTextDeltaEvent(choice.Delta.Content)
			}
			for _, tc := range choice.Delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				acc.Add(llm.ToolCallDelta{
					Index:     index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}

			switch choice.FinishReason {
			case openai.FinishReasonToolCalls:
				stopReason = llm.StopReasonToolCalls
			case openai.FinishReasonLength:
				stopReason = llm.StopReasonLength
			}
		}
	}()

	return ch, nil
}

// Remote returns information about the remote endpoint
func (c *Client) Remote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "openai",
	}

	// Check if we need to refresh the health status
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

// performHealthCheck performs a simple health check on the OpenAI API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Try to list models as a health check
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// OpenAI client doesn't require explicit cleanup
	return nil
}

// convertRequest converts our Request to OpenAI format
func (c *Client) convertRequest(req llm.Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: c.convertMessages(req.Messages),
	}

	// Handle optional pointer fields
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openaiReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		openaiReq.TopP = *req.TopP
	}

	for _, tool := range req.Tools {
		normalized := tool.Normalized()
		openaiReq.Tools = append(openaiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        normalized.Name,
				Description: normalized.Description,
				Parameters:  normalized.InputSchema,
			},
		})
	}

	return openaiReq
}

// convertMessages converts our messages to OpenAI format. A tool message
// carrying several result blocks fans out into one OpenAI tool message
// per block, since the protocol pairs each result with exactly one
// tool_call_id.
func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	var openaiMessages []openai.ChatCompletionMessage

	for _, msg := range messages {
		if msg.Role == llm.RoleTool {
			for _, result := range msg.ToolResults() {
				openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: result.ID,
					Content:    encodeResultContent(result),
				})
			}
			continue
		}

		openaiMsg := openai.ChatCompletionMessage{
			Role: string(msg.Role),
		}

		// Tool call IDs pass through verbatim
		for _, call := range msg.ToolCalls() {
			openaiMsg.ToolCalls = append(openaiMsg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			})
		}

		// Handle content - always ensure Content field is set to avoid 'undefined'
		if msg.HasContentType(llm.MessageTypeImage) {
			openaiMsg.MultiContent = c.convertMultiContent(msg)
		} else {
			text := msg.GetText()
			if strings.TrimSpace(text) == "" {
				// Use space for empty text to avoid 'undefined' error from API
				openaiMsg.Content = " "
			} else {
				openaiMsg.Content = text
			}
		}

		openaiMessages = append(openaiMessages, openaiMsg)
	}

	return openaiMessages
}

// convertMultiContent builds the multi-modal part list for a message
// mixing text and images
func (c *Client) convertMultiContent(msg llm.Message) []openai.ChatMessagePart {
	var parts []openai.ChatMessagePart

	for _, content := range msg.Content {
		switch block := content.(type) {
		case *llm.TextContent:
			// Skip empty text parts to avoid API errors
			if strings.TrimSpace(block.Text) != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: block.Text,
				})
			}
		case *llm.ImageContent:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    imageToURL(block),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}

	if len(parts) == 0 {
		// All content was empty, use space to avoid undefined
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: " ",
		})
	}

	return parts
}

// imageToURL passes URL references through and encodes raw bytes as a
// data URL
func imageToURL(image *llm.ImageContent) string {
	if image.URL != "" {
		return image.URL
	}
	return fmt.Sprintf("data:%s;base64,%s",
		image.MimeType, base64.StdEncoding.EncodeToString(image.Data))
}

// encodeResultContent flattens a tool result into the single string the
// protocol allows. Pure text travels as text; results carrying
// structured or binary items travel as the items' JSON so nothing is
// silently dropped.
func encodeResultContent(result *llm.ToolResultContent) string {
	textOnly := true
	for _, item := range result.Content {
		if item.Type != "text" {
			textOnly = false
			break
		}
	}
	if textOnly {
		text := result.GetText()
		if text == "" {
			return " "
		}
		return text
	}

	encoded, err := json.Marshal(result.Content)
	if err != nil {
		return result.GetText()
	}
	return string(encoded)
}

// convertResponse converts an OpenAI response to our format
func (c *Client) convertResponse(resp openai.ChatCompletionResponse) *llm.Response {
	response := &llm.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: llm.StopReasonStop,
	}

	if len(resp.Choices) == 0 {
		response.Message = llm.Message{Role: llm.RoleAssistant, Content: []llm.MessageContent{}}
		return response
	}

	choice := resp.Choices[0]
	response.Message = c.convertMessage(choice.Message)

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls:
		response.StopReason = llm.StopReasonToolCalls
	case openai.FinishReasonLength:
		response.StopReason = llm.StopReasonLength
	}
	if response.Message.HasToolCalls() {
		response.StopReason = llm.StopReasonToolCalls
	}

	return response
}

// convertMessage converts an OpenAI message to our format
func (c *Client) convertMessage(msg openai.ChatCompletionMessage) llm.Message {
	ourMsg := llm.Message{
		Role:    llm.MessageRole(msg.Role),
		Content: []llm.MessageContent{},
	}

	if msg.Content != "" {
		ourMsg.Content = append(ourMsg.Content, llm.NewTextContent(msg.Content))
	}

	for _, tc := range msg.ToolCalls {
		ourMsg.Content = append(ourMsg.Content,
			llm.NewToolCallContent(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}

	return ourMsg
}

// convertError passes upstream failures through unmodified; the adapter
// never retries on the caller's behalf
func (c *Client) convertError(err error) *llm.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewUpstreamError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewUpstreamError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return llm.NewUpstreamError(0, err.Error(), err)
}
