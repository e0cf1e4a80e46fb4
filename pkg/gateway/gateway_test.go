package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// memStore is an in-memory stand-in for the durable session table.
type memStore struct {
	mu      sync.Mutex
	records map[string]string
	deletes []string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]string)}
}

func (m *memStore) Upsert(_ context.Context, key, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = sessionID
	return nil
}

func (m *memStore) Find(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionID, ok := m.records[key]
	return sessionID, ok, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	m.deletes = append(m.deletes, key)
	return nil
}

func (m *memStore) DeleteExpired(context.Context, time.Duration) (int, error) { return 0, nil }
func (m *memStore) Close() error                                              { return nil }

func (m *memStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessionID, ok := m.records[key]
	return sessionID, ok
}

// fakeBackend scripts one backend connection.
type fakeBackend struct {
	session    string
	initErr    error
	tools      []mcp.Tool
	callResult *mcp.CallToolResult
	callErr    error
	callErrs   []error
	calls      int32
	closed     atomic.Bool
}

func (f *fakeBackend) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}

func (f *fakeBackend) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeBackend) CallTool(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	call := atomic.AddInt32(&f.calls, 1)
	if int(call) <= len(f.callErrs) {
		if err := f.callErrs[call-1]; err != nil {
			return nil, err
		}
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callResult != nil {
		return f.callResult, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "ok"}},
	}, nil
}

func (f *fakeBackend) SessionID() string { return f.session }
func (f *fakeBackend) Close() error      { f.closed.Store(true); return nil }

func listDirTool() mcp.Tool {
	return mcp.Tool{
		Name:           "list_dir",
		Description:    "List a directory",
		RawInputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
	}
}

func newTestGateway(store *memStore, dial func(ctx context.Context, callerKey, sessionID string) (mcpClient, error)) *Gateway {
	g := New(Config{
		BackendURL: "http://tools.internal/mcp",
		CatalogID:  "catalog-1",
		ServerID:   "server-1",
	}, store, nil)
	g.dial = dial
	return g
}

func TestGetOrCreateConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent_callers_share_one_creation", func(t *testing.T) {
		var dials int32
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			atomic.AddInt32(&dials, 1)
			time.Sleep(20 * time.Millisecond)
			return &fakeBackend{session: "session-1", tools: []mcp.Tool{listDirTool()}}, nil
		})

		var wg sync.WaitGroup
		conns := make([]*Connection, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				conn, err := g.GetOrCreateConnection(ctx, "agent-1")
				require.NoError(t, err)
				conns[i] = conn
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
		for _, conn := range conns[1:] {
			assert.Same(t, conns[0], conn, "every caller must share the one connection")
		}

		t.Log("✅ Single-flight collapsed 16 concurrent creations into one")
	})

	t.Run("distinct_callers_get_distinct_connections", func(t *testing.T) {
		var dials int32
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			atomic.AddInt32(&dials, 1)
			return &fakeBackend{session: "s", tools: []mcp.Tool{listDirTool()}}, nil
		})

		connA, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.NoError(t, err)
		connB, err := g.GetOrCreateConnection(ctx, "agent-2")
		require.NoError(t, err)

		assert.NotSame(t, connA, connB)
		assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	})

	t.Run("failed_handshake_caches_nothing", func(t *testing.T) {
		var dials int32
		fail := true
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			atomic.AddInt32(&dials, 1)
			if fail {
				return nil, errors.New("connection refused")
			}
			return &fakeBackend{session: "s", tools: []mcp.Tool{listDirTool()}}, nil
		})

		_, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.Error(t, err)
		assert.True(t, llm.IsToolConnection(err))

		fail = false
		conn, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.NoError(t, err)
		assert.NotNil(t, conn)
		assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	})

	t.Run("missing_caller_key_is_rejected", func(t *testing.T) {
		g := newTestGateway(newMemStore(), nil)
		_, err := g.GetOrCreateConnection(ctx, "")
		require.Error(t, err)
		assert.True(t, llm.IsValidation(err))
	})
}

func TestSessionResume(t *testing.T) {
	ctx := context.Background()
	connectionKey := "catalog-1/server-1/agent-1"

	t.Run("successful_connection_persists_session", func(t *testing.T) {
		store := newMemStore()
		g := newTestGateway(store, func(_ context.Context, _, sessionID string) (mcpClient, error) {
			assert.Empty(t, sessionID, "no stored session to present")
			return &fakeBackend{session: "session-new", tools: []mcp.Tool{listDirTool()}}, nil
		})

		conn, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, "session-new", conn.SessionID)
		assert.Equal(t, connectionKey, conn.Key)

		stored, ok := store.get(connectionKey)
		require.True(t, ok)
		assert.Equal(t, "session-new", stored)
	})

	t.Run("stored_session_is_presented_on_dial", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Upsert(ctx, connectionKey, "session-a"))

		var presented string
		g := newTestGateway(store, func(_ context.Context, _, sessionID string) (mcpClient, error) {
			presented = sessionID
			return &fakeBackend{session: sessionID, tools: []mcp.Tool{listDirTool()}}, nil
		})

		_, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, "session-a", presented)

		t.Log("✅ Reconnection presents the previously negotiated session id")
	})

	t.Run("stale_session_deletes_and_retries_once", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Upsert(ctx, connectionKey, "session-dead"))

		var attempts []string
		g := newTestGateway(store, func(_ context.Context, _, sessionID string) (mcpClient, error) {
			attempts = append(attempts, sessionID)
			if sessionID != "" {
				return &fakeBackend{initErr: errors.New("session not found")}, nil
			}
			return &fakeBackend{session: "session-fresh", tools: []mcp.Tool{listDirTool()}}, nil
		})

		conn, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"session-dead", ""}, attempts)
		assert.Equal(t, "session-fresh", conn.SessionID)
		assert.Contains(t, store.deletes, connectionKey)

		stored, ok := store.get(connectionKey)
		require.True(t, ok)
		assert.Equal(t, "session-fresh", stored)

		t.Log("✅ Stale session: delete, retry exactly once, persist the new id")
	})

	t.Run("stale_retry_failure_surfaces", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Upsert(ctx, connectionKey, "session-dead"))

		var dials int32
		g := newTestGateway(store, func(context.Context, string, string) (mcpClient, error) {
			atomic.AddInt32(&dials, 1)
			return &fakeBackend{initErr: errors.New("session not found")}, nil
		})

		_, err := g.GetOrCreateConnection(ctx, "agent-1")
		require.Error(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&dials), "exactly one retry")
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	caller := llm.CallerContext{AgentID: "agent-1"}

	t.Run("converts_backend_content", func(t *testing.T) {
		backend := &fakeBackend{
			session: "s",
			tools:   []mcp.Tool{listDirTool()},
			callResult: &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.TextContent{Type: "text", Text: "a.txt, b.txt"},
					mcp.ImageContent{Type: "image", Data: "aGVsbG8=", MIMEType: "image/png"},
				},
			},
		}
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			return backend, nil
		})

		call := llm.NewToolCallContent("c1", "list_dir", json.RawMessage(`{"path":"/"}`))
		result, err := g.Execute(ctx, caller, call)
		require.NoError(t, err)

		assert.Equal(t, "c1", result.ID)
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 2)
		assert.Equal(t, "a.txt, b.txt", result.Content[0].Text)
		assert.Equal(t, "image", result.Content[1].Type)
		assert.Equal(t, "aGVsbG8=", result.Content[1].Data)
		assert.Equal(t, "image/png", result.Content[1].MimeType)

		t.Log("✅ Non-text backend content survives conversion structurally")
	})

	t.Run("backend_failure_becomes_error_result", func(t *testing.T) {
		backend := &fakeBackend{
			session: "s",
			tools:   []mcp.Tool{listDirTool()},
			callErr: errors.New("tool exploded"),
		}
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			return backend, nil
		})

		call := llm.NewToolCallContent("c1", "list_dir", nil)
		result, err := g.Execute(ctx, caller, call)
		require.NoError(t, err, "invocation failures degrade, they do not fail the request")
		assert.True(t, result.IsError)
		assert.Contains(t, result.Content[0].Text, "tool exploded")
	})

	t.Run("invalid_arguments_become_error_result", func(t *testing.T) {
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			return &fakeBackend{session: "s", tools: []mcp.Tool{listDirTool()}}, nil
		})

		call := &llm.ToolCallContent{ID: "c1", Name: "list_dir", Arguments: json.RawMessage(`{not json`)}
		result, err := g.Execute(ctx, caller, call)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("dead_session_mid_call_reconnects_once", func(t *testing.T) {
		first := &fakeBackend{
			session:  "session-old",
			tools:    []mcp.Tool{listDirTool()},
			callErrs: []error{errors.New("session not found")},
		}
		second := &fakeBackend{session: "session-new", tools: []mcp.Tool{listDirTool()}}

		var dials int32
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			if atomic.AddInt32(&dials, 1) == 1 {
				return first, nil
			}
			return second, nil
		})

		call := llm.NewToolCallContent("c1", "list_dir", nil)
		result, err := g.Execute(ctx, caller, call)
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.True(t, first.closed.Load(), "stale connection must be torn down")
		assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	})
}

func TestCatalogConversion(t *testing.T) {
	ctx := context.Background()

	t.Run("schemas_are_normalized", func(t *testing.T) {
		g := newTestGateway(newMemStore(), func(context.Context, string, string) (mcpClient, error) {
			return &fakeBackend{
				session: "s",
				tools: []mcp.Tool{
					listDirTool(),
					{Name: "ping", Description: "No arguments at all"},
				},
			}, nil
		})

		tools, err := g.Tools(ctx, llm.CallerContext{AgentID: "agent-1"})
		require.NoError(t, err)
		require.Len(t, tools, 2)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(tools[1].InputSchema, &schema))
		assert.Equal(t, "object", schema["type"])
	})
}
