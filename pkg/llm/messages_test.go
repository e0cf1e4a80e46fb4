package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccessors(t *testing.T) {
	t.Run("text_concatenation", func(t *testing.T) {
		msg := Message{
			Role: RoleAssistant,
			Content: []MessageContent{
				NewTextContent("Hello"),
				NewToolCallContent("call_1", "lookup", json.RawMessage(`{}`)),
				NewTextContent(" World"),
			},
		}

		assert.Equal(t, "Hello World", msg.GetText())
		assert.False(t, msg.IsTextOnly())
		assert.True(t, msg.HasToolCalls())
	})

	t.Run("tool_call_and_result_accessors", func(t *testing.T) {
		msg := NewToolCallMessage(
			NewToolCallContent("call_1", "calculate", json.RawMessage(`{"a":5}`)),
			NewToolCallContent("call_2", "search", json.RawMessage(`{"q":"go"}`)),
		)

		calls := msg.ToolCalls()
		require.Len(t, calls, 2)
		assert.Equal(t, "call_1", calls[0].ID)
		assert.Equal(t, "search", calls[1].Name)

		resultMsg := NewToolResultMessage(
			NewToolResultText("call_1", "8", false),
		)
		results := resultMsg.ToolResults()
		require.Len(t, results, 1)
		assert.Equal(t, "call_1", results[0].ID)
		assert.Equal(t, "8", results[0].GetText())
		assert.Equal(t, RoleTool, resultMsg.Role)
	})

	t.Run("set_text_replaces_content", func(t *testing.T) {
		msg := NewTextMessage(RoleUser, "original")
		msg.AddContent(NewImageContentFromBytes([]byte{0x1}, "image/png"))

		msg.SetText("replaced")

		assert.True(t, msg.IsTextOnly())
		assert.Equal(t, "replaced", msg.GetText())
	})
}

func TestMessageDeepCopy(t *testing.T) {
	t.Run("tool_call_arguments_are_independent", func(t *testing.T) {
		original := NewToolCallMessage(
			NewToolCallContent("call_123", "calculate", json.RawMessage(`{"operation":"add"}`)),
		)

		copied := original.DeepCopy()

		// Mutate the original argument bytes in place
		args := original.ToolCalls()[0].Arguments
		args[2] = 'X'

		assert.Equal(t, json.RawMessage(`{"operation":"add"}`), copied.ToolCalls()[0].Arguments)
		t.Log("✅ Tool call arguments deep copy works correctly")
	})

	t.Run("tool_result_items_are_independent", func(t *testing.T) {
		original := NewToolResultMessage(
			NewToolResultContent("call_1", []ResultItem{
				NewTextResultItem("a.txt, b.txt"),
				NewStructuredResultItem(json.RawMessage(`{"count":2}`)),
			}, false),
		)

		copied := original.DeepCopy()

		original.ToolResults()[0].Content[0].Text = "mutated"
		original.ToolResults()[0].Content[1].Value[1] = 'X'

		copiedResult := copied.ToolResults()[0]
		assert.Equal(t, "a.txt, b.txt", copiedResult.Content[0].Text)
		assert.Equal(t, json.RawMessage(`{"count":2}`), copiedResult.Content[1].Value)
	})

	t.Run("binary_content_is_independent", func(t *testing.T) {
		imageData := []byte{0x89, 0x50, 0x4E, 0x47}
		original := Message{
			Role: RoleUser,
			Content: []MessageContent{
				NewTextContent("Please analyze this image."),
				NewImageContentFromBytes(imageData, "image/png"),
			},
		}

		copied := original.DeepCopy()

		original.Content[1].(*ImageContent).Data[0] = 0xFF

		copiedImage := copied.Content[1].(*ImageContent)
		assert.Equal(t, byte(0x89), copiedImage.Data[0])
		t.Log("✅ Binary content deep copy works correctly")
	})

	t.Run("empty_message", func(t *testing.T) {
		empty := Message{Role: RoleSystem}
		copied := empty.DeepCopy()
		assert.Equal(t, RoleSystem, copied.Role)
		assert.Nil(t, copied.Content)
	})
}

func TestMessageJSONRoundTrip(t *testing.T) {
	t.Run("all_block_types_survive_serialization", func(t *testing.T) {
		original := Message{
			Role: RoleAssistant,
			Content: []MessageContent{
				NewTextContent("Here is what I found:"),
				NewToolCallContent("call_1", "list_dir", json.RawMessage(`{"path":"/"}`)),
				NewToolResultContent("call_1", []ResultItem{
					NewTextResultItem("a.txt, b.txt"),
				}, false),
				NewImageContentFromURL("https://example.com/chart.png", "image/png"),
				NewFileContentFromURL("https://example.com/report.pdf", "report.pdf", "application/pdf", 1024),
			},
		}

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Message
		require.NoError(t, json.Unmarshal(data, &decoded))

		require.Len(t, decoded.Content, 5)
		assert.Equal(t, original.Role, decoded.Role)
		assert.Equal(t, "Here is what I found:", decoded.Content[0].(*TextContent).Text)

		call := decoded.Content[1].(*ToolCallContent)
		assert.Equal(t, "call_1", call.ID)
		assert.Equal(t, "list_dir", call.Name)
		assert.JSONEq(t, `{"path":"/"}`, string(call.Arguments))

		result := decoded.Content[2].(*ToolResultContent)
		assert.Equal(t, "call_1", result.ID)
		assert.False(t, result.IsError)
		assert.Equal(t, "a.txt, b.txt", result.GetText())

		image := decoded.Content[3].(*ImageContent)
		assert.Equal(t, "https://example.com/chart.png", image.URL)

		file := decoded.Content[4].(*FileContent)
		assert.Equal(t, "report.pdf", file.Filename)
		assert.Equal(t, int64(1024), file.FileSize)

		t.Log("✅ All content block types survive JSON round trip")
	})

	t.Run("unknown_block_type_is_rejected", func(t *testing.T) {
		payload := `{"role":"user","content":[{"type":"video","url":"x"}]}`

		var decoded Message
		err := json.Unmarshal([]byte(payload), &decoded)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported content type")
	})
}

func TestValidateToolPairing(t *testing.T) {
	t.Run("result_after_call_is_valid", func(t *testing.T) {
		messages := []Message{
			NewTextMessage(RoleUser, "list my files"),
			NewToolCallMessage(NewToolCallContent("c1", "list_dir", json.RawMessage(`{"path":"/"}`))),
			NewToolResultMessage(NewToolResultText("c1", "a.txt, b.txt", false)),
		}

		assert.NoError(t, ValidateToolPairing(messages))
	})

	t.Run("orphan_result_is_rejected", func(t *testing.T) {
		messages := []Message{
			NewTextMessage(RoleUser, "hello"),
			NewToolResultMessage(NewToolResultText("c9", "output", false)),
		}

		err := ValidateToolPairing(messages)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("result_before_call_in_same_conversation_is_rejected", func(t *testing.T) {
		messages := []Message{
			NewToolResultMessage(NewToolResultText("c1", "early", false)),
			NewToolCallMessage(NewToolCallContent("c1", "list_dir", nil)),
		}

		assert.Error(t, ValidateToolPairing(messages))
	})
}
