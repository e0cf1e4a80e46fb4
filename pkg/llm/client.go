// Client interface implemented by every provider adapter
package llm

import (
	"context"
	"time"
)

// DefaultHealthCheckInterval defines how often health checks should be
// refreshed to avoid excessive API calls to remote providers
const DefaultHealthCheckInterval = 5 * time.Minute

// ClientRemoteInfo represents information about a remote client
type ClientRemoteInfo struct {
	Name   string
	Status *ClientRemoteInfoStatus
}

// ClientRemoteInfoStatus represents the status of a remote client
type ClientRemoteInfoStatus struct {
	Healthy     *bool
	LastChecked *time.Time
}

// Client is the adapter contract every wire protocol implements: pure
// translation between the unified model and the provider's request and
// response shapes, wrapped around the single outbound call. Adapters
// never retry; transport failures pass through as upstream errors for
// the caller's policy to handle.
type Client interface {
	// ChatCompletion performs a buffered chat completion request
	ChatCompletion(ctx context.Context, req Request) (*Response, error)

	// StreamChatCompletion opens a streaming chat completion. Text
	// deltas are emitted as they arrive; tool calls are assembled
	// internally and emitted once complete.
	StreamChatCompletion(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// Remote returns information about the remote endpoint
	Remote() ClientRemoteInfo

	// Close cleans up any resources used by the client
	Close() error
}
