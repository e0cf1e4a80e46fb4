// Provider client configuration
package llm

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultBedrockModel   = "anthropic.claude-3-5-sonnet-20240620-v1:0"
)

const DefaultBedrockRegion = "us-east-1"

const DefaultRequestTimeout = 30 * time.Second

// ClientConfig holds configuration for creating provider clients
type ClientConfig struct {
	Model   string            `json:"model"`
	APIKey  string            `json:"api_key,omitempty"`
	BaseURL string            `json:"base_url,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"` // Provider-specific configs
}

// parseTimeoutFromEnv parses timeout from environment variable with fallback to default
func parseTimeoutFromEnv(envVar string, defaultTimeout time.Duration) time.Duration {
	if timeoutStr := os.Getenv(envVar); timeoutStr != "" {
		if timeoutSecs, err := strconv.Atoi(timeoutStr); err == nil && timeoutSecs > 0 {
			return time.Duration(timeoutSecs) * time.Second
		}
	}
	return defaultTimeout
}

func envOr(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// ConfigFromEnv assembles a ClientConfig for the given protocol from
// environment variables. Bedrock credentials come from the default AWS
// chain, so only model and region are read here.
func ConfigFromEnv(p Protocol) ClientConfig {
	switch p {
	case ProtocolOpenAI, ProtocolOpenAIResponses:
		return ClientConfig{
			Model:   envOr("OPENAI_MODEL", DefaultOpenAIModel),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Timeout: parseTimeoutFromEnv("OPENAI_TIMEOUT", DefaultRequestTimeout),
		}
	case ProtocolAnthropic:
		return ClientConfig{
			Model:   envOr("ANTHROPIC_MODEL", DefaultAnthropicModel),
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Timeout: parseTimeoutFromEnv("ANTHROPIC_TIMEOUT", DefaultRequestTimeout),
		}
	case ProtocolGemini:
		return ClientConfig{
			Model:   envOr("GEMINI_MODEL", DefaultGeminiModel),
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Timeout: parseTimeoutFromEnv("GEMINI_TIMEOUT", DefaultRequestTimeout),
		}
	case ProtocolBedrock:
		return ClientConfig{
			Model:   envOr("BEDROCK_MODEL", DefaultBedrockModel),
			Timeout: parseTimeoutFromEnv("BEDROCK_TIMEOUT", DefaultRequestTimeout),
			Extra: map[string]string{
				"region": envOr("AWS_REGION", DefaultBedrockRegion),
			},
		}
	default:
		return ClientConfig{Model: string(p)}
	}
}
