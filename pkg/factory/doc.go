// Package factory creates protocol clients.
//
// The protocol set is a closed enumeration: dispatch is an exhaustive
// switch over llm.Protocol rather than an open registration table, so
// adding a protocol is an enumerable, type-checked change.
//
// Example usage:
//
//	import (
//	    "github.com/arcfield/go-llmgate/pkg/factory"
//	    "github.com/arcfield/go-llmgate/pkg/llm"
//	)
//
//	client, err := factory.New(llm.ProtocolOpenAI, llm.ClientConfig{
//	    Model:  "gpt-4o-mini",
//	    APIKey: "your-api-key",
//	})
package factory
