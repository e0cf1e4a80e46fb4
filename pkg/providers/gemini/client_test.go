package gemini

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

func newTestClient() *Client {
	return &Client{model: "gemini-2.0-flash"}
}

// TestConvertRequest tests encoding of unified requests into
// generateContent contents and config
func TestConvertRequest(t *testing.T) {
	client := newTestClient()

	t.Run("system_messages_become_system_instruction", func(t *testing.T) {
		req := llm.Request{
			Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "You are terse."),
				llm.NewTextMessage(llm.RoleUser, "Hello"),
			},
		}

		contents, config, err := client.convertRequest(req)

		require.NoError(t, err)
		require.Len(t, contents, 1, "system text must not remain in the turn list")
		require.NotNil(t, config.SystemInstruction)
		require.Len(t, config.SystemInstruction.Parts, 1)
		assert.Equal(t, "You are terse.", config.SystemInstruction.Parts[0].Text)
	})

	t.Run("sampling_parameters_are_carried", func(t *testing.T) {
		temp := float32(0.2)
		topP := float32(0.9)
		maxTokens := 256
		req := llm.Request{
			Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hello")},
			Temperature: &temp,
			TopP:        &topP,
			MaxTokens:   &maxTokens,
		}

		_, config, err := client.convertRequest(req)

		require.NoError(t, err)
		require.NotNil(t, config.Temperature)
		assert.InDelta(t, 0.2, float64(*config.Temperature), 0.0001)
		require.NotNil(t, config.TopP)
		assert.InDelta(t, 0.9, float64(*config.TopP), 0.0001)
		assert.Equal(t, int32(256), config.MaxOutputTokens)
	})

	t.Run("tool_schemas_become_typed_declarations", func(t *testing.T) {
		schema := json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path"},
				"recursive": {"type": "boolean"}
			},
			"required": ["path"]
		}`)
		req := llm.Request{
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "list files")},
			Tools: []llm.ToolDescriptor{
				{Name: "list_dir", Description: "List directory contents", InputSchema: schema},
			},
		}

		_, config, err := client.convertRequest(req)

		require.NoError(t, err)
		require.Len(t, config.Tools, 1)
		require.Len(t, config.Tools[0].FunctionDeclarations, 1)

		decl := config.Tools[0].FunctionDeclarations[0]
		assert.Equal(t, "list_dir", decl.Name)
		assert.Equal(t, "List directory contents", decl.Description)
		require.NotNil(t, decl.Parameters)
		assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
		assert.Equal(t, []string{"path"}, decl.Parameters.Required)
		require.Contains(t, decl.Parameters.Properties, "path")
		assert.Equal(t, genai.TypeString, decl.Parameters.Properties["path"].Type)
		assert.Equal(t, "File path", decl.Parameters.Properties["path"].Description)
		require.Contains(t, decl.Parameters.Properties, "recursive")
		assert.Equal(t, genai.TypeBoolean, decl.Parameters.Properties["recursive"].Type)
	})

	t.Run("schema_less_tools_still_declare_objects", func(t *testing.T) {
		req := llm.Request{
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "ping")},
			Tools:    []llm.ToolDescriptor{{Name: "ping"}},
		}

		_, config, err := client.convertRequest(req)

		require.NoError(t, err)
		require.Len(t, config.Tools[0].FunctionDeclarations, 1)
		assert.Equal(t, genai.TypeObject, config.Tools[0].FunctionDeclarations[0].Parameters.Type)
	})

	t.Run("empty_conversations_are_rejected", func(t *testing.T) {
		_, _, err := client.convertRequest(llm.Request{})

		require.Error(t, err)
		assert.True(t, llm.IsValidation(err))
	})
}

// TestConvertMessages tests the unified-to-Gemini content mapping
func TestConvertMessages(t *testing.T) {
	client := newTestClient()

	t.Run("tool_calls_become_function_call_parts", func(t *testing.T) {
		messages := []llm.Message{
			llm.NewToolCallMessage(
				llm.NewToolCallContent("read_file-0", "read_file", json.RawMessage(`{"path":"a.txt"}`)),
			),
		}

		contents, _ := client.convertMessages(messages)

		require.Len(t, contents, 1)
		assert.Equal(t, genai.RoleModel, contents[0].Role)
		require.Len(t, contents[0].Parts, 1)

		call := contents[0].Parts[0].FunctionCall
		require.NotNil(t, call)
		assert.Equal(t, "read_file", call.Name)
		assert.Equal(t, "a.txt", call.Args["path"])
	})

	t.Run("tool_results_pair_back_to_their_call_by_id", func(t *testing.T) {
		messages := []llm.Message{
			llm.NewToolCallMessage(
				llm.NewToolCallContent("read_file-0", "read_file", json.RawMessage(`{"path":"a.txt"}`)),
			),
			llm.NewToolResultMessage(
				llm.NewToolResultText("read_file-0", "contents of a.txt", false),
			),
		}

		contents, _ := client.convertMessages(messages)

		require.Len(t, contents, 2)
		assert.Equal(t, genai.RoleUser, contents[1].Role)
		require.Len(t, contents[1].Parts, 1)

		response := contents[1].Parts[0].FunctionResponse
		require.NotNil(t, response)
		assert.Equal(t, "read_file", response.Name,
			"the wire pairs by function name, recovered from the originating call")
		assert.Equal(t, "contents of a.txt", response.Response["output"])
	})

	t.Run("error_results_use_the_error_key", func(t *testing.T) {
		messages := []llm.Message{
			llm.NewToolResultMessage(
				llm.NewToolResultText("unknown-0", "permission denied", true),
			),
		}

		contents, _ := client.convertMessages(messages)

		require.Len(t, contents, 1)
		response := contents[0].Parts[0].FunctionResponse
		require.NotNil(t, response)
		assert.Equal(t, "unknown-0", response.Name,
			"without an originating call the id is the only name available")
		assert.Equal(t, "permission denied", response.Response["error"])
	})

	t.Run("image_bytes_become_inline_data", func(t *testing.T) {
		messages := []llm.Message{
			{
				Role: llm.RoleUser,
				Content: []llm.MessageContent{
					llm.NewTextContent("Describe this image:"),
					llm.NewImageContentFromBytes([]byte("png-bytes"), "image/png"),
				},
			},
		}

		contents, _ := client.convertMessages(messages)

		require.Len(t, contents, 1)
		require.Len(t, contents[0].Parts, 2)

		blob := contents[0].Parts[1].InlineData
		require.NotNil(t, blob)
		assert.Equal(t, "image/png", blob.MIMEType)
		assert.Equal(t, []byte("png-bytes"), blob.Data)
	})

	t.Run("empty_user_message_gets_placeholder_part", func(t *testing.T) {
		messages := []llm.Message{llm.NewTextMessage(llm.RoleUser, "")}

		contents, _ := client.convertMessages(messages)

		require.Len(t, contents, 1)
		require.Len(t, contents[0].Parts, 1)
		assert.Equal(t, " ", contents[0].Parts[0].Text,
			"the API rejects contents without parts")
	})

	t.Run("system_text_joins_with_blank_lines", func(t *testing.T) {
		messages := []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "Be terse."),
			llm.NewTextMessage(llm.RoleSystem, "Answer in English."),
			llm.NewTextMessage(llm.RoleUser, "Hello"),
		}

		contents, system := client.convertMessages(messages)

		require.Len(t, contents, 1)
		assert.Equal(t, "Be terse.\n\nAnswer in English.", system)
	})
}

// TestSplitContents tests the history/current-turn split the chat
// session API expects
func TestSplitContents(t *testing.T) {
	client := newTestClient()

	messages := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "first"),
		llm.NewTextMessage(llm.RoleAssistant, "reply"),
		llm.NewTextMessage(llm.RoleUser, "second"),
	}

	contents, _ := client.convertMessages(messages)
	history, parts := splitContents(contents)

	require.Len(t, history, 2)
	require.Len(t, parts, 1)
	assert.Equal(t, "second", parts[0].Text)
}

// TestConvertResponse tests decoding of generateContent responses into
// the unified model
func TestConvertResponse(t *testing.T) {
	client := newTestClient()

	t.Run("text_response_maps_with_usage", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "Hello there"}}},
					FinishReason: genai.FinishReasonStop,
				},
			},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     12,
				CandidatesTokenCount: 3,
				TotalTokenCount:      15,
			},
		}

		response := client.convertResponse(resp)

		assert.Contains(t, response.ID, "gemini-")
		assert.Equal(t, "gemini-2.0-flash", response.Model)
		assert.Equal(t, "Hello there", response.Text())
		assert.Equal(t, llm.StopReasonStop, response.StopReason)
		assert.Equal(t, 12, response.Usage.InputTokens)
		assert.Equal(t, 3, response.Usage.OutputTokens)
		assert.Equal(t, 15, response.Usage.TotalTokens)
	})

	t.Run("missing_call_ids_are_synthesized", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					Content: &genai.Content{
						Role: genai.RoleModel,
						Parts: []*genai.Part{
							{FunctionCall: &genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Oslo"}}},
							{FunctionCall: &genai.FunctionCall{Name: "read_file", Args: map[string]any{"path": "a.txt"}}},
						},
					},
				},
			},
		}

		response := client.convertResponse(resp)

		assert.Equal(t, llm.StopReasonToolCalls, response.StopReason)
		assert.True(t, response.RequiresToolExecution())

		calls := response.ToolCalls()
		require.Len(t, calls, 2)
		assert.Equal(t, "get_weather-0", calls[0].ID)
		assert.JSONEq(t, `{"city":"Oslo"}`, string(calls[0].Arguments))
		assert.Equal(t, "read_file-1", calls[1].ID)
		assert.JSONEq(t, `{"path":"a.txt"}`, string(calls[1].Arguments))
	})

	t.Run("provider_assigned_ids_pass_through", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					Content: &genai.Content{
						Role: genai.RoleModel,
						Parts: []*genai.Part{
							{FunctionCall: &genai.FunctionCall{ID: "call_native_1", Name: "get_weather"}},
						},
					},
				},
			},
		}

		response := client.convertResponse(resp)

		calls := response.ToolCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "call_native_1", calls[0].ID)
		assert.JSONEq(t, `{}`, string(calls[0].Arguments),
			"argument-less calls still carry an object")
	})

	t.Run("max_tokens_finish_maps_to_length_stop", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "truncat"}}},
					FinishReason: genai.FinishReasonMaxTokens,
				},
			},
		}

		response := client.convertResponse(resp)

		assert.Equal(t, llm.StopReasonLength, response.StopReason)
	})
}

// TestConvertError tests that upstream failures pass through with their
// status code and body intact
func TestConvertError(t *testing.T) {
	client := newTestClient()

	t.Run("api_error_keeps_status_and_body", func(t *testing.T) {
		apiErr := genai.APIError{
			Code:    429,
			Message: "quota exceeded",
			Status:  "RESOURCE_EXHAUSTED",
		}

		converted := client.convertError(apiErr)

		assert.True(t, llm.IsUpstream(converted))
		assert.Equal(t, 429, converted.StatusCode)
		assert.Contains(t, converted.Body, "quota exceeded")
		assert.Contains(t, converted.Body, "RESOURCE_EXHAUSTED")
	})

	t.Run("transport_error_is_still_upstream", func(t *testing.T) {
		converted := client.convertError(assert.AnError)

		assert.True(t, llm.IsUpstream(converted))
		assert.Zero(t, converted.StatusCode)
	})
}

// TestNewClient tests client construction validation
func TestNewClient(t *testing.T) {
	t.Run("missing_api_key_is_rejected", func(t *testing.T) {
		_, err := NewClient(llm.ClientConfig{Model: "gemini-2.0-flash"})

		require.Error(t, err)
		assert.True(t, llm.IsValidation(err))
	})

	t.Run("defaults_are_applied", func(t *testing.T) {
		client, err := NewClient(llm.ClientConfig{APIKey: "test-key"})

		require.NoError(t, err)
		assert.Equal(t, llm.DefaultGeminiModel, client.model)
	})
}
