package tokenizer

import "github.com/arcfield/go-llmgate/pkg/llm"

const (
	// charsPerToken is the long-run average for English prose across
	// the supported model families.
	charsPerToken = 4

	// messageOverheadTokens approximates the framing each provider
	// wraps around a single message.
	messageOverheadTokens = 4

	// imageTokens is the flat price assigned to an image block,
	// matching the low-detail image cost of the OpenAI family.
	imageTokens = 85
)

// Heuristic counts tokens as ceil(len/4) over the flattened text of the
// input. It serves the provider families without a public tokenizer and
// doubles as the fallback when an exact vocabulary fails to load.
type Heuristic struct{}

// NewHeuristic creates a heuristic counter.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) CountText(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

func (h *Heuristic) CountMessage(message llm.Message) int {
	count := messageOverheadTokens + h.CountText(string(message.Role))
	for _, content := range message.Content {
		if content.Type() == llm.MessageTypeImage {
			count += imageTokens
			continue
		}
		count += h.CountText(blockText(content))
	}
	return count
}

func (h *Heuristic) CountMessages(messages []llm.Message) int {
	total := 0
	for _, message := range messages {
		total += h.CountMessage(message)
	}
	return total
}
