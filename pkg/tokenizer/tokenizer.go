// Package tokenizer estimates token counts for proxy requests before
// they are sent upstream. Counts are approximate by contract: they feed
// rate-limit prechecks and usage reports, not billing. Every counter
// accepts raw text, a single message, or a whole conversation, and
// tolerates every content block type.
package tokenizer

import (
	"strings"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Tokenizer counts tokens for the three shapes the proxy needs to price.
type Tokenizer interface {
	// CountText counts tokens in a raw text fragment.
	CountText(text string) int

	// CountMessage counts tokens in one message, including the
	// per-message framing overhead of the target provider family.
	CountMessage(message llm.Message) int

	// CountMessages counts tokens across a whole conversation.
	CountMessages(messages []llm.Message) int
}

// ForProtocol returns the best counter available for a provider
// protocol. The OpenAI family gets an exact BPE tokenizer; everyone
// else gets the heuristic.
func ForProtocol(protocol llm.Protocol) Tokenizer {
	return ForModel(protocol, "")
}

// ForModel is ForProtocol with a model hint, used to pick the vocabulary
// for exact counters. An empty model selects the family default.
func ForModel(protocol llm.Protocol, model string) Tokenizer {
	switch protocol {
	case llm.ProtocolOpenAI, llm.ProtocolOpenAIResponses:
		if exact, err := NewTiktoken(model); err == nil {
			return exact
		}
		return NewHeuristic()
	default:
		return NewHeuristic()
	}
}

// blockText flattens a content block into the pseudo-text that
// contributes to its token count. Tool calls count their name and
// argument JSON; tool results count their items' text and structured
// payloads. Binary payloads are represented by their mime type only,
// image blocks are priced separately by the counters.
func blockText(content llm.MessageContent) string {
	switch block := content.(type) {
	case *llm.TextContent:
		return block.Text
	case *llm.ToolCallContent:
		return block.Name + " " + string(block.Arguments)
	case *llm.ToolResultContent:
		var sb strings.Builder
		for _, item := range block.Content {
			switch {
			case item.Text != "":
				sb.WriteString(item.Text)
			case len(item.Value) > 0:
				sb.Write(item.Value)
			default:
				sb.WriteString(item.MimeType)
			}
			sb.WriteByte('\n')
		}
		return sb.String()
	case *llm.FileContent:
		return block.Filename + " " + block.MimeType
	}
	return ""
}
