package factory

import (
	"testing"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

func TestFactory(t *testing.T) {
	t.Parallel()

	t.Run("unsupported_protocol_is_rejected", func(t *testing.T) {
		t.Parallel()

		_, err := New(llm.Protocol("nonexistent"), llm.ClientConfig{})
		if err == nil {
			t.Fatal("expected error for unsupported protocol")
		}
		if !llm.IsValidation(err) {
			t.Errorf("expected a validation error, got %v", err)
		}
	})

	t.Run("every_protocol_has_an_arm", func(t *testing.T) {
		t.Parallel()

		// Constructors without credentials either build a client or fail
		// with an adapter-level validation error. Either way the arm
		// exists; only an unknown protocol reports unsupported.
		for _, protocol := range llm.Protocols() {
			client, err := New(protocol, llm.ClientConfig{})
			if err != nil {
				if !llm.IsValidation(err) {
					t.Errorf("protocol %s: expected validation error, got %v", protocol, err)
				}
				continue
			}
			_ = client.Close()
		}
	})

	t.Run("adapter_errors_pass_through", func(t *testing.T) {
		t.Parallel()

		// The openai adapter rejects configurations without an API key.
		_, err := New(llm.ProtocolOpenAI, llm.ClientConfig{Model: "gpt-4o-mini"})
		if err == nil {
			t.Fatal("expected error for missing API key")
		}
		if !llm.IsValidation(err) {
			t.Errorf("expected a validation error, got %v", err)
		}
	})

	t.Run("mock_clients_are_always_available", func(t *testing.T) {
		t.Parallel()

		client, err := New(llm.ProtocolMock, llm.ClientConfig{Model: "test-model"})
		if err != nil {
			t.Fatalf("failed to create mock client: %v", err)
		}
		defer func() { _ = client.Close() }()

		if info := client.Remote(); info.Name != "mock" {
			t.Errorf("expected remote name mock, got %s", info.Name)
		}
	})

	t.Run("env_configuration_builds_clients", func(t *testing.T) {
		t.Parallel()

		client, err := FromEnv(llm.ProtocolMock)
		if err != nil {
			t.Fatalf("failed to create client from env: %v", err)
		}
		defer func() { _ = client.Close() }()
	})
}
