package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{NewTextMessage(RoleUser, "hello")},
	}

	t.Run("well_formed_request_passes", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("empty_model_is_rejected", func(t *testing.T) {
		req := valid
		req.Model = ""
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("no_messages_is_rejected", func(t *testing.T) {
		req := valid
		req.Messages = nil
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("message_without_role_is_rejected", func(t *testing.T) {
		req := valid
		req.Messages = []Message{{Content: []MessageContent{NewTextContent("orphan")}}}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no role")
	})

	t.Run("orphaned_tool_result_is_rejected", func(t *testing.T) {
		req := valid
		req.Messages = []Message{
			NewTextMessage(RoleUser, "hello"),
			NewToolResultMessage(NewToolResultText("c-unknown", "output", false)),
		}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestCallerContextKey(t *testing.T) {
	t.Run("agent_id_wins", func(t *testing.T) {
		caller := CallerContext{OrganizationID: "org", AgentID: "agent", ExternalAgentID: "ext"}
		assert.Equal(t, "agent", caller.Key())
	})

	t.Run("external_agent_id_is_the_fallback", func(t *testing.T) {
		caller := CallerContext{OrganizationID: "org", ExternalAgentID: "ext"}
		assert.Equal(t, "ext", caller.Key())
	})

	t.Run("organization_id_is_the_last_resort", func(t *testing.T) {
		caller := CallerContext{OrganizationID: "org"}
		assert.Equal(t, "org", caller.Key())
	})
}

func TestResponseHelpers(t *testing.T) {
	t.Run("tool_call_responses_require_execution", func(t *testing.T) {
		resp := Response{
			Message:    NewToolCallMessage(NewToolCallContent("c1", "list_dir", json.RawMessage(`{}`))),
			StopReason: StopReasonToolCalls,
		}
		assert.True(t, resp.RequiresToolExecution())
		require.Len(t, resp.ToolCalls(), 1)
		assert.Equal(t, "list_dir", resp.ToolCalls()[0].Name)
	})

	t.Run("plain_text_responses_do_not", func(t *testing.T) {
		resp := Response{
			Message:    NewTextMessage(RoleAssistant, "done"),
			StopReason: StopReasonStop,
		}
		assert.False(t, resp.RequiresToolExecution())
		assert.Empty(t, resp.ToolCalls())
		assert.Equal(t, "done", resp.Text())
	})

	t.Run("deep_copies_are_independent", func(t *testing.T) {
		original := Response{
			ID:      "r1",
			Message: NewToolCallMessage(NewToolCallContent("c1", "list_dir", json.RawMessage(`{"path":"/"}`))),
			Usage:   Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
		}

		clone := original.DeepCopy()
		clone.ToolCalls()[0].Arguments[2] = 'X'
		clone.Usage.InputTokens = 99

		assert.JSONEq(t, `{"path":"/"}`, string(original.ToolCalls()[0].Arguments))
		assert.Equal(t, 1, original.Usage.InputTokens)
	})
}

func TestUsageAdd(t *testing.T) {
	usage := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	usage.Add(Usage{InputTokens: 20, OutputTokens: 7, TotalTokens: 27})

	assert.Equal(t, 30, usage.InputTokens)
	assert.Equal(t, 12, usage.OutputTokens)
	assert.Equal(t, 42, usage.TotalTokens)
}
