// Package test holds cross-package scenarios: the proxy, factory and
// session store wired together the way a deployment would. Everything
// runs offline against the mock protocol by default; tests against a
// live provider are gated on LLM_PROTOCOL and the provider's own
// credentials.
package test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcfield/go-llmgate/pkg/factory"
	"github.com/arcfield/go-llmgate/pkg/llm"
	"github.com/arcfield/go-llmgate/pkg/providers/mock"
)

// scriptedClient builds a mock client for offline scenarios.
func scriptedClient(t *testing.T) *mock.Client {
	t.Helper()

	client, err := mock.NewClient(llm.ClientConfig{Model: "mock-model"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// liveProtocol returns the protocol under live test, skipping unless
// LLM_PROTOCOL names a real provider.
func liveProtocol(t *testing.T) llm.Protocol {
	t.Helper()

	name := os.Getenv("LLM_PROTOCOL")
	if name == "" || name == "mock" {
		t.Skip("live provider tests need LLM_PROTOCOL and credentials")
	}

	protocol, err := llm.ParseProtocol(name)
	require.NoError(t, err, "LLM_PROTOCOL must name a supported protocol")
	return protocol
}

// liveClient builds a client for the live protocol from the
// environment.
func liveClient(t *testing.T) (llm.Protocol, llm.Client) {
	t.Helper()

	protocol := liveProtocol(t)
	client, err := factory.FromEnv(protocol)
	require.NoError(t, err, "failed to build %s client from environment", protocol)
	t.Cleanup(func() { _ = client.Close() })

	t.Logf("🤖 Using %s with model %s", protocol, llm.ConfigFromEnv(protocol).Model)
	return protocol, client
}

func userMessage(text string) llm.Message {
	return llm.NewTextMessage(llm.RoleUser, text)
}
