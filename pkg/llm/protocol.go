// Wire protocol identifiers
package llm

import "fmt"

// Protocol identifies one of the supported upstream wire protocols.
// The set is closed: every dispatch over Protocol is an exhaustive
// switch, so adding a protocol is a compile-visible change rather than
// a runtime registration.
type Protocol string

const (
	// ProtocolOpenAI is the OpenAI Chat Completions protocol.
	ProtocolOpenAI Protocol = "openai"
	// ProtocolOpenAIResponses is the OpenAI Responses protocol.
	ProtocolOpenAIResponses Protocol = "openai-responses"
	// ProtocolAnthropic is the Anthropic Messages protocol.
	ProtocolAnthropic Protocol = "anthropic"
	// ProtocolGemini is the Gemini generateContent protocol.
	ProtocolGemini Protocol = "gemini"
	// ProtocolBedrock is the Amazon Bedrock Converse protocol
	// (buffered and converse-stream actions).
	ProtocolBedrock Protocol = "bedrock"
	// ProtocolMock is the in-process scripted protocol used by tests.
	ProtocolMock Protocol = "mock"
)

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolOpenAI, ProtocolOpenAIResponses, ProtocolAnthropic,
		ProtocolGemini, ProtocolBedrock, ProtocolMock:
		return true
	default:
		return false
	}
}

func (p Protocol) String() string {
	return string(p)
}

// ParseProtocol converts a protocol name into a Protocol value.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(s)
	if !p.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown protocol %q", s))
	}
	return p, nil
}

// Protocols returns all supported protocols in a stable order.
func Protocols() []Protocol {
	return []Protocol{
		ProtocolOpenAI,
		ProtocolOpenAIResponses,
		ProtocolAnthropic,
		ProtocolGemini,
		ProtocolBedrock,
		ProtocolMock,
	}
}
