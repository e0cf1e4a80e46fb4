package modifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

func textResult(id string, texts ...string) llm.ToolExecutionResult {
	items := make([]llm.ResultItem, 0, len(texts))
	for _, text := range texts {
		items = append(items, llm.NewTextResultItem(text))
	}
	return llm.ToolExecutionResult{ID: id, Content: items}
}

func TestApply(t *testing.T) {
	engine := New(nil)

	t.Run("empty_template_is_identity", func(t *testing.T) {
		original := textResult("call_1", "hello")
		modified := engine.Apply("", original)
		assert.Equal(t, original, modified)
	})

	t.Run("rewrites_text_through_lookup", func(t *testing.T) {
		original := textResult("call_1", "hello")
		modified := engine.Apply(`Modified: {{{lookup (lookup response 0) "text"}}}`, original)

		require.Len(t, modified.Content, 1)
		assert.Equal(t, "text", modified.Content[0].Type)
		assert.Equal(t, "Modified: hello", modified.Content[0].Text)
		assert.Equal(t, "call_1", modified.ID)

		t.Log("✅ Template rewrote the tool output")
	})

	t.Run("each_iterates_with_last_marker", func(t *testing.T) {
		original := textResult("call_1", "a.txt", "b.txt", "c.txt")
		template := `{{#each response}}{{text}}{{#unless @last}}, {{/unless}}{{/each}}`

		modified := engine.Apply(template, original)
		require.Len(t, modified.Content, 1)
		assert.Equal(t, "a.txt, b.txt, c.txt", modified.Content[0].Text)
	})

	t.Run("json_output_becomes_structured_content", func(t *testing.T) {
		original := textResult("call_1", "hello")
		template := `{"summary":"{{escapeJson (lookup (lookup response 0) "text")}}"}`

		modified := engine.Apply(template, original)
		require.Len(t, modified.Content, 1)
		assert.Equal(t, "json", modified.Content[0].Type)
		assert.JSONEq(t, `{"summary":"hello"}`, string(modified.Content[0].Value))
	})

	t.Run("json_helper_round_trips_typed_items", func(t *testing.T) {
		original := llm.ToolExecutionResult{
			ID: "call_1",
			Content: []llm.ResultItem{
				llm.NewTextResultItem("hello"),
				llm.NewBinaryResultItem("image", "aGVsbG8=", "image/png"),
			},
		}

		modified := engine.Apply(`{{{json response}}}`, original)
		require.Len(t, modified.Content, 2)
		assert.Equal(t, "text", modified.Content[0].Type)
		assert.Equal(t, "hello", modified.Content[0].Text)
		assert.Equal(t, "image", modified.Content[1].Type)
		assert.Equal(t, "aGVsbG8=", modified.Content[1].Data)
		assert.Equal(t, "image/png", modified.Content[1].MimeType)

		t.Log("✅ Non-text items survive a template that re-emits the content array")
	})

	t.Run("escape_json_protects_embedded_quotes", func(t *testing.T) {
		original := textResult("call_1", `say "hi" to\neveryone`)
		template := `{"note":"{{escapeJson (lookup (lookup response 0) "text")}}"}`

		modified := engine.Apply(template, original)
		require.Len(t, modified.Content, 1)
		require.Equal(t, "json", modified.Content[0].Type)

		var payload struct {
			Note string `json:"note"`
		}
		require.NoError(t, json.Unmarshal(modified.Content[0].Value, &payload))
		assert.Equal(t, `say "hi" to\neveryone`, payload.Note)
	})

	t.Run("preserves_error_flag", func(t *testing.T) {
		original := llm.ToolExecutionResult{
			ID:      "call_1",
			Content: []llm.ResultItem{llm.NewTextResultItem("connection refused")},
			IsError: true,
		}

		modified := engine.Apply(`failure: {{{lookup (lookup response 0) "text"}}}`, original)
		assert.True(t, modified.IsError)
		assert.Equal(t, "failure: connection refused", modified.Content[0].Text)
	})
}

func TestApplyNeverBreaksToolOutput(t *testing.T) {
	engine := New(nil)
	original := textResult("call_1", "hello")

	badTemplates := map[string]string{
		"unclosed_block":    `{{#each response}}{{text}}`,
		"unknown_helper":    `{{mangle response 0}}`,
		"unbalanced_braces": `{{lookup response`,
	}

	for name, template := range badTemplates {
		t.Run(name, func(t *testing.T) {
			modified := engine.Apply(template, original)
			assert.Equal(t, original, modified, "broken template must hand back the original result")
		})
	}

	t.Log("✅ Broken templates can never corrupt tool output")
}

func TestParseRendered(t *testing.T) {
	t.Run("plain_text_wraps_as_text_item", func(t *testing.T) {
		items := parseRendered("Modified: hello")
		require.Len(t, items, 1)
		assert.Equal(t, "text", items[0].Type)
		assert.Equal(t, "Modified: hello", items[0].Text)
	})

	t.Run("json_object_becomes_one_structured_item", func(t *testing.T) {
		items := parseRendered(`{"files":["a.txt","b.txt"]}`)
		require.Len(t, items, 1)
		assert.Equal(t, "json", items[0].Type)
	})

	t.Run("untyped_array_becomes_structured_items", func(t *testing.T) {
		items := parseRendered(`[{"path":"a.txt"},{"path":"b.txt"}]`)
		require.Len(t, items, 2)
		assert.Equal(t, "json", items[0].Type)
		assert.JSONEq(t, `{"path":"a.txt"}`, string(items[0].Value))
	})

	t.Run("empty_output_stays_text", func(t *testing.T) {
		items := parseRendered("")
		require.Len(t, items, 1)
		assert.Equal(t, "text", items[0].Type)
		assert.Empty(t, items[0].Text)
	})
}
