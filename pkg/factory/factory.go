package factory

import (
	"fmt"

	"github.com/arcfield/go-llmgate/pkg/llm"
	"github.com/arcfield/go-llmgate/pkg/providers/anthropic"
	"github.com/arcfield/go-llmgate/pkg/providers/bedrock"
	"github.com/arcfield/go-llmgate/pkg/providers/gemini"
	"github.com/arcfield/go-llmgate/pkg/providers/mock"
	"github.com/arcfield/go-llmgate/pkg/providers/openai"
	"github.com/arcfield/go-llmgate/pkg/providers/responses"
)

// New creates a client speaking the given protocol. The protocol set is
// closed: adding a protocol means adding a constant to llm.Protocol and
// an arm here. Model defaults are applied by the adapters, so an empty
// model is accepted.
func New(protocol llm.Protocol, config llm.ClientConfig) (llm.Client, error) {
	switch protocol {
	case llm.ProtocolOpenAI:
		return openai.NewClient(config)
	case llm.ProtocolOpenAIResponses:
		return responses.NewClient(config)
	case llm.ProtocolAnthropic:
		return anthropic.NewClient(config)
	case llm.ProtocolGemini:
		return gemini.NewClient(config)
	case llm.ProtocolBedrock:
		return bedrock.NewClient(config)
	case llm.ProtocolMock:
		return mock.NewClient(config)
	default:
		return nil, llm.NewValidationError(fmt.Sprintf("unsupported protocol: %s", protocol))
	}
}

// FromEnv creates a client for the given protocol with its
// configuration assembled from environment variables.
func FromEnv(protocol llm.Protocol) (llm.Client, error) {
	return New(protocol, llm.ConfigFromEnv(protocol))
}
