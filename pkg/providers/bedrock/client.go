package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Client implements the llm.Client interface for the Bedrock Converse
// protocol
type Client struct {
	bedrockClient        *bedrock.Client
	bedrockRuntimeClient *bedrockruntime.Client
	model                string
	region               string

	// Health check caching
	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new Bedrock client. Credentials resolve through
// the AWS SDK's default chain; no API key is required.
func NewClient(config llm.ClientConfig) (*Client, error) {
	region := llm.DefaultBedrockRegion
	if r, exists := config.Extra["region"]; exists && r != "" {
		region = r
	}

	model := config.Model
	if model == "" {
		model = llm.DefaultBedrockModel
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, llm.NewValidationError(fmt.Sprintf("failed to load AWS configuration: %v", err))
	}

	bedrockClient := bedrock.NewFromConfig(awsConfig, func(o *bedrock.Options) {
		if endpoint := config.Extra["bedrock_endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	bedrockRuntimeClient := bedrockruntime.NewFromConfig(awsConfig, func(o *bedrockruntime.Options) {
		if endpoint := config.Extra["bedrock_runtime_endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if config.BaseURL != "" {
			o.BaseEndpoint = aws.String(config.BaseURL)
		}
	})

	return &Client{
		bedrockClient:        bedrockClient,
		bedrockRuntimeClient: bedrockRuntimeClient,
		model:                model,
		region:               region,
	}, nil
}

// ChatCompletion performs a buffered Converse request
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	input := c.convertRequest(req)

	resp, err := c.bedrockRuntimeClient.Converse(ctx, input)
	if err != nil {
		return nil, c.convertError(err)
	}

	return c.convertResponse(resp), nil
}

// StreamChatCompletion opens a ConverseStream request. Text deltas are
// forwarded live; tool-use input fragments are assembled per content
// block and emitted as one tool-calls event at stream end.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	input := c.convertRequest(req)

	resp, err := c.bedrockRuntimeClient.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
		ToolConfig:      input.ToolConfig,
	})
	if err != nil {
		return nil, c.convertError(err)
	}

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)

		stream := resp.GetStream()
		defer func() { _ = stream.Close() }()

		acc := llm.NewToolCallAccumulator()
		var usage *llm.Usage
		stopReason := llm.StopReasonStop

		for event := range stream.Events() {
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if start, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					acc.Add(llm.ToolCallDelta{
						Index: int(aws.ToInt32(v.Value.ContentBlockIndex)),
						ID:    aws.ToString(start.Value.ToolUseId),
						Name:  aws.ToString(start.Value.Name),
					})
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					ch <- llm.NewTextDeltaEvent(delta.Value)
				case *types.ContentBlockDeltaMemberToolUse:
					acc.Add(llm.ToolCallDelta{
						Index:     int(aws.ToInt32(v.Value.ContentBlockIndex)),
						Arguments: aws.ToString(delta.Value.Input),
					})
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				stopReason = convertStopReason(v.Value.StopReason)

			case *types.ConverseStreamOutputMemberMetadata:
				usage = convertUsage(v.Value.Usage)

			default:
				// Unknown event types are skipped
				continue
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.NewErrorEvent(c.convertError(err))
			return
		}

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
	}()

	return ch, nil
}

// Remote returns information about the remote endpoint
func (c *Client) Remote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{
		Name: "bedrock",
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

// performHealthCheck lists foundation models as a cheap liveness probe
func (c *Client) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.bedrockClient.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	return err == nil
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	// AWS SDK clients don't require explicit cleanup
	return nil
}

// convertRequest converts our Request into Converse input
func (c *Client) convertRequest(req llm.Request) *bedrockruntime.ConverseInput {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages, system := c.convertMessages(req.Messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil {
		inference := &types.InferenceConfiguration{}
		if req.Temperature != nil {
			inference.Temperature = req.Temperature
		}
		if req.TopP != nil {
			inference.TopP = req.TopP
		}
		if req.MaxTokens != nil {
			inference.MaxTokens = aws.Int32(int32(*req.MaxTokens))
		}
		input.InferenceConfig = inference
	}

	if len(req.Tools) > 0 {
		toolConfig := &types.ToolConfiguration{}
		for _, tool := range req.Tools {
			normalized := tool.Normalized()
			spec := types.ToolSpecification{
				Name:        aws.String(normalized.Name),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: rawToDocument(normalized.InputSchema)},
			}
			if normalized.Description != "" {
				spec.Description = aws.String(normalized.Description)
			}
			toolConfig.Tools = append(toolConfig.Tools, &types.ToolMemberToolSpec{Value: spec})
		}
		input.ToolConfig = toolConfig
	}

	return input
}

// rawToDocument re-encodes raw JSON as a smithy document
func rawToDocument(raw json.RawMessage) document.Interface {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		decoded = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return document.NewLazyDocument(decoded)
}

// convertMessages converts our messages to Converse format. System
// messages are extracted into system content blocks; tool results
// become tool_result blocks inside a user message, as the protocol
// requires.
func (c *Client) convertMessages(messages []llm.Message) ([]types.Message, []types.SystemContentBlock) {
	var system []types.SystemContentBlock
	converted := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetText(); strings.TrimSpace(text) != "" {
				system = append(system, &types.SystemContentBlockMemberText{Value: text})
			}

		case llm.RoleTool:
			var blocks []types.ContentBlock
			for _, result := range msg.ToolResults() {
				blocks = append(blocks, convertToolResult(result))
			}
			if len(blocks) > 0 {
				converted = append(converted, types.Message{
					Role:    types.ConversationRoleUser,
					Content: blocks,
				})
			}

		case llm.RoleAssistant:
			if blocks := convertBlocks(msg); len(blocks) > 0 {
				converted = append(converted, types.Message{
					Role:    types.ConversationRoleAssistant,
					Content: blocks,
				})
			}

		default:
			blocks := convertBlocks(msg)
			if len(blocks) == 0 {
				// The API rejects messages without content
				blocks = []types.ContentBlock{&types.ContentBlockMemberText{Value: " "}}
			}
			converted = append(converted, types.Message{
				Role:    types.ConversationRoleUser,
				Content: blocks,
			})
		}
	}

	return converted, system
}

// convertBlocks maps text, image and tool-call content into Converse
// content blocks. Empty text blocks are dropped; the API rejects them.
func convertBlocks(msg llm.Message) []types.ContentBlock {
	var blocks []types.ContentBlock

	for _, content := range msg.Content {
		switch block := content.(type) {
		case *llm.TextContent:
			if strings.TrimSpace(block.Text) != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: block.Text})
			}
		case *llm.ImageContent:
			blocks = append(blocks, convertImage(block))
		case *llm.ToolCallContent:
			blocks = append(blocks, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(block.ID),
					Name:      aws.String(block.Name),
					Input:     rawToDocument(block.Arguments),
				},
			})
		}
	}

	return blocks
}

// convertImage encodes image content as an inline image block. The
// protocol only accepts bytes, so URL references degrade to a text
// block carrying the URL.
func convertImage(image *llm.ImageContent) types.ContentBlock {
	if len(image.Data) == 0 {
		return &types.ContentBlockMemberText{Value: image.URL}
	}
	return &types.ContentBlockMemberImage{
		Value: types.ImageBlock{
			Format: imageFormat(image.MimeType),
			Source: &types.ImageSourceMemberBytes{Value: image.Data},
		},
	}
}

// imageFormat maps a MIME type onto the protocol's format enum
func imageFormat(mimeType string) types.ImageFormat {
	switch mimeType {
	case "image/jpeg":
		return types.ImageFormatJpeg
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatPng
	}
}

// convertToolResult folds one execution result into a tool_result
// block, preserving text, structured and image items natively
func convertToolResult(result *llm.ToolResultContent) types.ContentBlock {
	var parts []types.ToolResultContentBlock

	for _, item := range result.Content {
		switch {
		case item.Type == "text":
			text := item.Text
			if text == "" {
				text = " "
			}
			parts = append(parts, &types.ToolResultContentBlockMemberText{Value: text})
		case item.Type == "image" && item.Data != "":
			decoded, err := base64.StdEncoding.DecodeString(item.Data)
			if err != nil {
				continue
			}
			parts = append(parts, &types.ToolResultContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: imageFormat(item.MimeType),
					Source: &types.ImageSourceMemberBytes{Value: decoded},
				},
			})
		case len(item.Value) > 0:
			var decoded any
			if err := json.Unmarshal(item.Value, &decoded); err != nil {
				parts = append(parts, &types.ToolResultContentBlockMemberText{Value: string(item.Value)})
				continue
			}
			parts = append(parts, &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(decoded)})
		default:
			encoded, err := json.Marshal(item)
			if err != nil {
				continue
			}
			parts = append(parts, &types.ToolResultContentBlockMemberText{Value: string(encoded)})
		}
	}
	if len(parts) == 0 {
		parts = append(parts, &types.ToolResultContentBlockMemberText{Value: " "})
	}

	block := types.ToolResultBlock{
		ToolUseId: aws.String(result.ID),
		Content:   parts,
	}
	if result.IsError {
		block.Status = types.ToolResultStatusError
	}

	return &types.ContentBlockMemberToolResult{Value: block}
}

// convertResponse converts Converse output to our format
func (c *Client) convertResponse(resp *bedrockruntime.ConverseOutput) *llm.Response {
	response := &llm.Response{
		ID:         fmt.Sprintf("bedrock-%s", time.Now().Format(time.RFC3339Nano)),
		Model:      c.model,
		StopReason: convertStopReason(resp.StopReason),
	}
	if usage := convertUsage(resp.Usage); usage != nil {
		response.Usage = *usage
	}

	message := llm.Message{Role: llm.RoleAssistant, Content: []llm.MessageContent{}}
	if output, ok := resp.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range output.Value.Content {
			switch v := block.(type) {
			case *types.ContentBlockMemberText:
				message.Content = append(message.Content, llm.NewTextContent(v.Value))
			case *types.ContentBlockMemberToolUse:
				message.Content = append(message.Content, llm.NewToolCallContent(
					aws.ToString(v.Value.ToolUseId),
					aws.ToString(v.Value.Name),
					documentToRaw(v.Value.Input),
				))
			}
		}
	}
	response.Message = message

	if message.HasToolCalls() {
		response.StopReason = llm.StopReasonToolCalls
	}

	return response
}

// documentToRaw decodes a smithy document back into raw JSON
func documentToRaw(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	var decoded any
	if err := doc.UnmarshalSmithyDocument(&decoded); err != nil {
		return nil
	}
	raw, err := json.Marshal(decoded)
	if err != nil {
		return nil
	}
	return raw
}

// convertStopReason maps the protocol's stop reasons onto ours
func convertStopReason(reason types.StopReason) llm.StopReason {
	switch reason {
	case types.StopReasonToolUse:
		return llm.StopReasonToolCalls
	case types.StopReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return llm.StopReasonStop
	}
}

// convertUsage maps token usage when the API reports it
func convertUsage(usage *types.TokenUsage) *llm.Usage {
	if usage == nil {
		return nil
	}
	return &llm.Usage{
		InputTokens:  int(aws.ToInt32(usage.InputTokens)),
		OutputTokens: int(aws.ToInt32(usage.OutputTokens)),
		TotalTokens:  int(aws.ToInt32(usage.TotalTokens)),
	}
}

// convertError passes upstream failures through unmodified; the
// adapter never retries on the caller's behalf
func (c *Client) convertError(err error) *llm.Error {
	statusCode := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		statusCode = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return llm.NewUpstreamError(statusCode,
			fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()), err)
	}
	return llm.NewUpstreamError(statusCode, err.Error(), err)
}
