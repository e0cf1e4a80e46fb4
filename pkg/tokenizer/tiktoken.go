package tokenizer

import (
	"strings"

	tiktoken "github.com/tiktoken-go/tokenizer"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

const (
	// tiktokenMessageOverhead is the fixed framing cost per message in
	// the OpenAI chat format.
	tiktokenMessageOverhead = 3

	// tiktokenReplyPrimer is the fixed cost of the assistant reply
	// priming appended after the last message.
	tiktokenReplyPrimer = 3
)

// Tiktoken counts tokens with the exact BPE vocabulary of the OpenAI
// model family. Vocabularies are embedded in the library, so counting
// never touches the network.
type Tiktoken struct {
	codec    tiktoken.Codec
	fallback *Heuristic
}

// NewTiktoken creates an exact counter for an OpenAI-family model. The
// model name selects the vocabulary; unknown and empty names get the
// newest one.
func NewTiktoken(model string) (*Tiktoken, error) {
	codec, err := tiktoken.Get(encodingForModel(model))
	if err != nil {
		return nil, err
	}
	return &Tiktoken{codec: codec, fallback: NewHeuristic()}, nil
}

// encodingForModel maps a model name to its BPE vocabulary. Matching is
// by prefix so dated snapshots resolve like their base model.
func encodingForModel(model string) tiktoken.Encoding {
	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tiktoken.O200kBase
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"):
		return tiktoken.Cl100kBase
	default:
		return tiktoken.O200kBase
	}
}

func (t *Tiktoken) CountText(text string) int {
	if len(text) == 0 {
		return 0
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return t.fallback.CountText(text)
	}
	return len(ids)
}

func (t *Tiktoken) CountMessage(message llm.Message) int {
	count := tiktokenMessageOverhead + t.CountText(string(message.Role))
	for _, content := range message.Content {
		if content.Type() == llm.MessageTypeImage {
			count += imageTokens
			continue
		}
		count += t.CountText(blockText(content))
	}
	return count
}

func (t *Tiktoken) CountMessages(messages []llm.Message) int {
	total := tiktokenReplyPrimer
	for _, message := range messages {
		total += t.CountMessage(message)
	}
	return total
}
