package tokenizer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

func TestHeuristic(t *testing.T) {
	counter := NewHeuristic()

	t.Run("rounds_up_partial_tokens", func(t *testing.T) {
		assert.Equal(t, 0, counter.CountText(""))
		assert.Equal(t, 1, counter.CountText("abcd"))
		assert.Equal(t, 2, counter.CountText("abcde"))
	})

	t.Run("counts_every_block_type", func(t *testing.T) {
		call := llm.NewToolCallContent("call_1", "list_dir", json.RawMessage(`{"path":"/workspace"}`))
		result := llm.NewToolResultText("call_1", "file1.txt\nfile2.txt", false)
		image := llm.NewImageContentFromBytes([]byte{0xFF, 0xD8, 0xFF}, "image/jpeg")

		message := llm.Message{
			Role:    llm.RoleUser,
			Content: []llm.MessageContent{llm.NewTextContent("hello"), call, result, image},
		}

		count := counter.CountMessage(message)
		assert.Greater(t, count, imageTokens, "image blocks carry a flat cost")

		withoutImage := llm.Message{
			Role:    llm.RoleUser,
			Content: []llm.MessageContent{llm.NewTextContent("hello"), call, result},
		}
		assert.Equal(t, imageTokens, count-counter.CountMessage(withoutImage))

		t.Log("✅ Heuristic prices text, tool traffic and images")
	})

	t.Run("conversation_count_is_sum_of_messages", func(t *testing.T) {
		first := llm.NewTextMessage(llm.RoleUser, "list my files")
		second := llm.NewTextMessage(llm.RoleAssistant, "which directory?")

		total := counter.CountMessages([]llm.Message{first, second})
		assert.Equal(t, counter.CountMessage(first)+counter.CountMessage(second), total)
	})

	t.Run("tool_arguments_contribute_to_count", func(t *testing.T) {
		small := llm.NewToolCallMessage(llm.NewToolCallContent("c1", "q", json.RawMessage(`{}`)))
		big := llm.NewToolCallMessage(llm.NewToolCallContent("c1", "q",
			json.RawMessage(`{"query":"a very long argument string that should cost plenty of tokens"}`)))

		assert.Greater(t, counter.CountMessage(big), counter.CountMessage(small))
	})
}

func TestTiktoken(t *testing.T) {
	t.Run("counts_with_embedded_vocabulary", func(t *testing.T) {
		counter, err := NewTiktoken("gpt-4o-mini")
		require.NoError(t, err)

		count := counter.CountText("The quick brown fox jumps over the lazy dog")
		assert.Greater(t, count, 0)
		assert.Less(t, count, 20, "exact BPE should beat the 1-token-per-char worst case")
	})

	t.Run("empty_text_is_free", func(t *testing.T) {
		counter, err := NewTiktoken("")
		require.NoError(t, err)
		assert.Equal(t, 0, counter.CountText(""))
	})

	t.Run("message_framing_adds_overhead", func(t *testing.T) {
		counter, err := NewTiktoken("gpt-4o")
		require.NoError(t, err)

		message := llm.NewTextMessage(llm.RoleUser, "hello")
		assert.Greater(t, counter.CountMessage(message), counter.CountText("hello"))
	})

	t.Run("model_names_resolve_by_prefix", func(t *testing.T) {
		assert.Equal(t, encodingForModel("gpt-4o-2024-08-06"), encodingForModel("gpt-4o"))
		assert.NotEqual(t, encodingForModel("gpt-4-turbo"), encodingForModel("gpt-4o"))
		assert.Equal(t, encodingForModel("o3-mini"), encodingForModel("gpt-4o"))
	})
}

func TestForProtocol(t *testing.T) {
	t.Run("openai_family_gets_exact_counter", func(t *testing.T) {
		assert.IsType(t, &Tiktoken{}, ForProtocol(llm.ProtocolOpenAI))
		assert.IsType(t, &Tiktoken{}, ForProtocol(llm.ProtocolOpenAIResponses))
	})

	t.Run("other_families_get_heuristic", func(t *testing.T) {
		assert.IsType(t, &Heuristic{}, ForProtocol(llm.ProtocolAnthropic))
		assert.IsType(t, &Heuristic{}, ForProtocol(llm.ProtocolGemini))
		assert.IsType(t, &Heuristic{}, ForProtocol(llm.ProtocolBedrock))
		assert.IsType(t, &Heuristic{}, ForProtocol(llm.ProtocolMock))
	})

	t.Run("every_counter_tolerates_every_block", func(t *testing.T) {
		message := llm.Message{
			Role: llm.RoleTool,
			Content: []llm.MessageContent{
				llm.NewToolResultContent("call_1", []llm.ResultItem{
					llm.NewStructuredResultItem(json.RawMessage(`{"entries":["a","b"]}`)),
					llm.NewBinaryResultItem("image", "aGVsbG8=", "image/png"),
				}, false),
			},
		}

		for _, protocol := range llm.Protocols() {
			assert.Greater(t, ForProtocol(protocol).CountMessage(message), 0, "protocol %s", protocol)
		}
	})
}
