package responses

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	openairesponses "github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Client implements the llm.Client interface for the OpenAI Responses
// protocol
type Client struct {
	client openai.Client
	model  string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new OpenAI Responses client
func NewClient(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, llm.NewValidationError("API key is required for openai-responses")
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
		model = llm.DefaultOpenAIModel
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// ChatCompletion performs a buffered request against the Responses API
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.client.Responses.New(ctx, c.convertRequest(req))
	if err != nil {
		return nil, c.convertError(err)
	}

	if resp.Status == openairesponses.ResponseStatusFailed {
		return nil, llm.NewUpstreamError(0, resp.Error.Message, nil)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion opens a streaming request against the Responses
// API. Output text deltas are forwarded live; function-call argument
// fragments feed an accumulator and surface as one completed tool-calls
// event at stream end.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	stream := c.client.Responses.NewStreaming(ctx, c.convertRequest(req))

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		acc := llm.NewToolCallAccumulator()
		var final *openairesponses.Response

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "response.output_text.delta":
				ch <- llm.NewTextDeltaEvent(event.Delta)

			case "response.output_item.added":
				if event.Item.Type == "function_call" {
					call := event.Item.AsFunctionCall()
					acc.Add(llm.ToolCallDelta{
						Index: int(event.OutputIndex),
						ID:    call.CallID,
						Name:  call.Name,
					})
				}

			case "response.function_call_arguments.delta":
				acc.Add(llm.ToolCallDelta{
					Index:     int(event.OutputIndex),
					Arguments: event.Delta,
				})

			case "response.completed", "response.incomplete":
				resp := event.Response
				final = &resp

			case "response.failed":
				ch <- llm.NewErrorEvent(llm.NewUpstreamError(0, event.Response.Error.Message, nil))
				return

			case "error":
				ch <- llm.NewErrorEvent(llm.NewUpstreamError(0, event.Message, nil))
				return
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.NewErrorEvent(c.convertError(err))
			return
		}

		stopReason := llm.StopReasonStop
		if acc.HasCalls() {
			calls, completeErr := acc.Complete()
			if completeErr != nil {
				ch <- llm.NewErrorEvent(completeErr)
				return
			}
			ch <- llm.NewToolCallsEvent(calls)
			stopReason = llm.StopReasonToolCalls
		}

		var usage *llm.Usage
		if final != nil {
			usage = &llm.Usage{
				InputTokens:  int(final.Usage.InputTokens),
				OutputTokens: int(final.Usage.OutputTokens),
				TotalTokens:  int(final.Usage.TotalTokens),
			}
			if stopReason == llm.StopReasonStop &&
				final.Status == openairesponses.ResponseStatusIncomplete &&
				final.IncompleteDetails.Reason == "max_output_tokens" {
				stopReason = llm.StopReasonLength
			}
		}
		ch <- llm.NewDoneEvent(stopReason, usage)
	}()

	return ch, nil
}

// Remote returns information about the remote endpoint
func (c *Client) Remote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "openai-responses",
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

// performHealthCheck performs a simple health check against the API
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.client.Models.List(ctx)
	return err == nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	return nil
}

// convertRequest converts our Request into Responses API parameters.
// System messages travel as instructions; everything else becomes typed
// input items.
func (c *Client) convertRequest(req llm.Request) openairesponses.ResponseNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openairesponses.ResponseNewParams{
		Model: shared.ResponsesModel(model),
	}

	if instructions := systemText(req.Messages); instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	params.Input = openairesponses.ResponseNewParamsInputUnion{
		OfInputItemList: c.convertInput(req.Messages),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Temperature))
	}
	if req.MaxTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(float64(*req.TopP))
	}

	for _, tool := range req.Tools {
		normalized := tool.Normalized()
		var schema map[string]any
		_ = json.Unmarshal(normalized.InputSchema, &schema)

		fn := &openairesponses.FunctionToolParam{
			Name:       normalized.Name,
			Parameters: shared.FunctionParameters(schema),
			Strict:     openai.Bool(false),
		}
		if normalized.Description != "" {
			fn.Description = openai.String(normalized.Description)
		}
		params.Tools = append(params.Tools, openairesponses.ToolUnionParam{OfFunction: fn})
	}

	return params
}

// systemText joins the text of all system messages for the
// instructions field
func systemText(messages []llm.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if text := msg.GetText(); strings.TrimSpace(text) != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// convertInput flattens the conversation into the Responses input item
// list. Assistant tool calls and tool results become their own
// function_call and function_call_output items.
func (c *Client) convertInput(messages []llm.Message) openairesponses.ResponseInputParam {
	items := openairesponses.ResponseInputParam{}

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			// Carried as instructions
			continue

		case llm.RoleTool:
			for _, result := range msg.ToolResults() {
				items = append(items,
					openairesponses.ResponseInputItemParamOfFunctionCallOutput(result.ID, encodeResultContent(result)))
			}

		case llm.RoleAssistant:
			if text := msg.GetText(); strings.TrimSpace(text) != "" {
				items = append(items, textItem(openairesponses.EasyInputMessageRoleAssistant, text))
			}
			for _, call := range msg.ToolCalls() {
				items = append(items, openairesponses.ResponseInputItemUnionParam{
					OfFunctionCall: &openairesponses.ResponseFunctionToolCallParam{
						CallID:    call.ID,
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}

		default:
			if msg.HasContentType(llm.MessageTypeImage) {
				items = append(items, openairesponses.ResponseInputItemUnionParam{
					OfMessage: &openairesponses.EasyInputMessageParam{
						Role: openairesponses.EasyInputMessageRoleUser,
						Content: openairesponses.EasyInputMessageContentUnionParam{
							OfInputItemContentList: c.convertContentParts(msg),
						},
					},
				})
				continue
			}
			text := msg.GetText()
			if strings.TrimSpace(text) == "" {
				// Use space for empty text to avoid 'undefined' errors
				// from the API
				text = " "
			}
			items = append(items, textItem(openairesponses.EasyInputMessageRoleUser, text))
		}
	}

	return items
}

// textItem builds a plain-text input message item
func textItem(role openairesponses.EasyInputMessageRole, text string) openairesponses.ResponseInputItemUnionParam {
	return openairesponses.ResponseInputItemUnionParam{
		OfMessage: &openairesponses.EasyInputMessageParam{
			Role:    role,
			Content: openairesponses.EasyInputMessageContentUnionParam{OfString: openai.String(text)},
		},
	}
}

// convertContentParts builds the typed content list for a message
// mixing text and images
func (c *Client) convertContentParts(msg llm.Message) openairesponses.ResponseInputMessageContentListParam {
	var parts openairesponses.ResponseInputMessageContentListParam

	for _, content := range msg.Content {
		switch block := content.(type) {
		case *llm.TextContent:
			if strings.TrimSpace(block.Text) != "" {
				parts = append(parts, openairesponses.ResponseInputContentUnionParam{
					OfInputText: &openairesponses.ResponseInputTextParam{Text: block.Text},
				})
			}
		case *llm.ImageContent:
			parts = append(parts, openairesponses.ResponseInputContentUnionParam{
				OfInputImage: &openairesponses.ResponseInputImageParam{
					Detail:   openairesponses.ResponseInputImageDetailAuto,
					ImageURL: openai.String(imageToURL(block)),
				},
			})
		}
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

// encodeResultContent flattens a tool result into the single output
// string the protocol allows. Pure text travels as text; anything
// carrying structured or binary items travels as the items' JSON.
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

// convertResponse converts a Responses API response to our format
func (c *Client) convertResponse(resp *openairesponses.Response) *llm.Response {
	response := &llm.Response{
		ID:    resp.ID,
		Model: string(resp.Model),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		StopReason: llm.StopReasonStop,
	}

	message := llm.Message{Role: llm.RoleAssistant, Content: []llm.MessageContent{}}
	if text := resp.OutputText(); text != "" {
		message.Content = append(message.Content, llm.NewTextContent(text))
	}
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			call := item.AsFunctionCall()
			message.Content = append(message.Content,
				llm.NewToolCallContent(call.CallID, call.Name, json.RawMessage(call.Arguments)))
		}
	}
	response.Message = message

	if message.HasToolCalls() {
		response.StopReason = llm.StopReasonToolCalls
	} else if resp.Status == openairesponses.ResponseStatusIncomplete &&
		resp.IncompleteDetails.Reason == "max_output_tokens" {
		response.StopReason = llm.StopReasonLength
	}

	return response
}

// convertError passes upstream failures through unmodified; the adapter
// never retries on the caller's behalf
func (c *Client) convertError(err error) *llm.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.NewUpstreamError(apiErr.StatusCode, apiErr.RawJSON(), err)
	}
	return llm.NewUpstreamError(0, err.Error(), err)
}
