// Package gateway maintains the proxy's connections to the tool
// backend. Connections are cached per caller, created lazily with
// single-flight deduplication, and resumed across processes through the
// durable session store: a caller landing on a fresh proxy instance
// rejoins the backend session it already negotiated elsewhere.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/arcfield/go-llmgate/pkg/llm"
	"github.com/arcfield/go-llmgate/pkg/session"
)

const (
	// mcpProtocolVersion is the MCP revision negotiated at handshake.
	mcpProtocolVersion = "2025-06-18"

	// DefaultConnectTimeout bounds transport start plus handshake.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultInvokeTimeout bounds one tool invocation.
	DefaultInvokeTimeout = 60 * time.Second
)

// Config carries the backend coordinates shared by every connection.
type Config struct {
	// BackendURL is the streamable HTTP endpoint of the tool backend.
	BackendURL string `yaml:"backend_url"`

	// CatalogID and ServerID scope the logical connection key so one
	// caller can hold distinct sessions against distinct catalogs.
	CatalogID string `yaml:"catalog_id"`
	ServerID  string `yaml:"server_id"`

	// ClientName and ClientVersion identify the proxy at handshake.
	ClientName    string `yaml:"client_name"`
	ClientVersion string `yaml:"client_version"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	InvokeTimeout  time.Duration `yaml:"invoke_timeout"`
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = "go-llmgate"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "1.0.0"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = DefaultInvokeTimeout
	}
	return c
}

// Connection is one live backend connection owned by the cache. Tools
// is the caller's catalog as listed at handshake, already normalized.
type Connection struct {
	Key       string
	SessionID string
	Tools     []llm.ToolDescriptor

	client mcpClient
}

// mcpClient is the slice of the MCP client the gateway uses, split out
// so tests can stand in a fake backend.
type mcpClient interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	SessionID() string
	Close() error
}

// Gateway is the tool gateway client. One instance serves the whole
// process; all methods are safe for concurrent use.
type Gateway struct {
	cfg    Config
	store  session.Store
	logger *slog.Logger

	// dial is swapped by tests; the default talks MCP over
	// streamable HTTP.
	dial func(ctx context.Context, callerKey, sessionID string) (mcpClient, error)

	mu          sync.RWMutex
	connections map[string]*Connection
	flight      singleflight.Group
}

// New creates a gateway backed by the given durable session store. A
// nil logger falls back to the default.
func New(cfg Config, store session.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		cfg:         cfg.withDefaults(),
		store:       store,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
	g.dial = g.dialStreamableHTTP
	return g
}

// connectionKey composes the logical key a session is stored under.
func (g *Gateway) connectionKey(callerKey string) string {
	return path.Join(g.cfg.CatalogID, g.cfg.ServerID, callerKey)
}

// GetOrCreateConnection returns the live connection for a caller,
// establishing it on first use. Concurrent calls for the same key share
// a single establishment; a failed handshake caches nothing.
func (g *Gateway) GetOrCreateConnection(ctx context.Context, callerKey string) (*Connection, error) {
	if callerKey == "" {
		return nil, llm.NewValidationError("caller key is required for tool backend access")
	}

	g.mu.RLock()
	conn, ok := g.connections[callerKey]
	g.mu.RUnlock()
	if ok {
		return conn, nil
	}

	value, err, _ := g.flight.Do(callerKey, func() (interface{}, error) {
		// Re-check under the flight: a previous winner may have
		// populated the cache while this call queued.
		g.mu.RLock()
		conn, ok := g.connections[callerKey]
		g.mu.RUnlock()
		if ok {
			return conn, nil
		}

		conn, err := g.connect(ctx, callerKey)
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		g.connections[callerKey] = conn
		g.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Connection), nil
}

// connect establishes a backend connection, resuming the stored session
// when one exists. A stale stored session is deleted and establishment
// retried exactly once with a fresh session; any further failure
// surfaces.
func (g *Gateway) connect(ctx context.Context, callerKey string) (*Connection, error) {
	connectionKey := g.connectionKey(callerKey)

	storedSession, found, err := g.store.Find(ctx, connectionKey)
	if err != nil {
		g.logger.Warn("session lookup failed, connecting fresh",
			"connection_key", connectionKey,
			"error", err)
		storedSession, found = "", false
	}

	conn, err := g.establish(ctx, callerKey, storedSession)
	if err != nil && found && isSessionStale(err) {
		g.logger.Info("stored tool session is stale, reconnecting",
			"connection_key", connectionKey)
		if deleteErr := g.store.Delete(ctx, connectionKey); deleteErr != nil {
			g.logger.Warn("failed to delete stale session record",
				"connection_key", connectionKey,
				"error", deleteErr)
		}
		conn, err = g.establish(ctx, callerKey, "")
	}
	if err != nil {
		return nil, err
	}

	conn.Key = connectionKey
	if conn.SessionID != "" {
		if upsertErr := g.store.Upsert(ctx, connectionKey, conn.SessionID); upsertErr != nil {
			g.logger.Warn("failed to persist tool session",
				"connection_key", connectionKey,
				"error", upsertErr)
		}
	}
	return conn, nil
}

// establish performs the transport start, capability handshake and tool
// listing for one connection attempt.
func (g *Gateway) establish(ctx context.Context, callerKey, sessionID string) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	backend, err := g.dial(ctx, callerKey, sessionID)
	if err != nil {
		return nil, llm.NewToolConnectionError("failed to reach tool backend", err)
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcpProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    g.cfg.ClientName,
				Version: g.cfg.ClientVersion,
			},
		},
	}
	if _, err := backend.Initialize(ctx, initRequest); err != nil {
		backend.Close()
		return nil, llm.NewToolConnectionError("tool backend handshake failed", err)
	}

	toolsResult, err := backend.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		backend.Close()
		return nil, llm.NewToolConnectionError("failed to list tools", err)
	}

	catalog, err := convertCatalog(toolsResult.Tools)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Connection{
		SessionID: backend.SessionID(),
		Tools:     catalog,
		client:    backend,
	}, nil
}

// dialStreamableHTTP opens the MCP streamable HTTP transport. The
// caller key doubles as the bearer token; a non-empty session id is
// presented for resumption.
func (g *Gateway) dialStreamableHTTP(ctx context.Context, callerKey, sessionID string) (mcpClient, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + callerKey,
	}
	if sessionID != "" {
		headers["Mcp-Session-Id"] = sessionID
	}

	backend, err := client.NewStreamableHttpClient(g.cfg.BackendURL,
		transport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, err
	}

	if err := backend.GetTransport().Start(ctx); err != nil {
		return nil, err
	}

	return &streamableClient{Client: backend, presented: sessionID}, nil
}

// streamableClient adapts the MCP client to the gateway's view of it.
// SessionID prefers the id the transport negotiated over the one
// presented at dial time.
type streamableClient struct {
	*client.Client
	presented string
}

func (s *streamableClient) SessionID() string {
	if httpTransport, ok := s.Client.GetTransport().(*transport.StreamableHTTP); ok {
		if id := httpTransport.GetSessionId(); id != "" {
			return id
		}
	}
	return s.presented
}

// Tools returns the caller's tool catalog, connecting if needed.
func (g *Gateway) Tools(ctx context.Context, caller llm.CallerContext) ([]llm.ToolDescriptor, error) {
	conn, err := g.GetOrCreateConnection(ctx, caller.Key())
	if err != nil {
		return nil, err
	}
	return conn.Tools, nil
}

// Execute runs one tool call for a caller and implements the
// orchestrator's executor contract. Backend and transport failures
// become IsError results so the model can react to them; only
// cancellation and an unreachable backend return an error.
func (g *Gateway) Execute(ctx context.Context, caller llm.CallerContext, call *llm.ToolCallContent) (llm.ToolExecutionResult, error) {
	conn, err := g.GetOrCreateConnection(ctx, caller.Key())
	if err != nil {
		return llm.ToolExecutionResult{}, err
	}

	result, err := g.invoke(ctx, conn, call)
	if err != nil && isSessionStale(err) {
		// The backend dropped the session under a live connection.
		// Tear it down and retry once on a fresh one.
		g.evict(caller.Key())
		conn, connErr := g.GetOrCreateConnection(ctx, caller.Key())
		if connErr != nil {
			return llm.ToolExecutionResult{}, connErr
		}
		result, err = g.invoke(ctx, conn, call)
	}
	if err != nil {
		if ctx.Err() != nil {
			return llm.ToolExecutionResult{}, ctx.Err()
		}
		return llm.ToolExecutionResult{
			ID:      call.ID,
			Content: []llm.ResultItem{llm.NewTextResultItem(err.Error())},
			IsError: true,
		}, nil
	}
	return result, nil
}

// Invoke forwards one tool call over an established connection.
func (g *Gateway) Invoke(ctx context.Context, conn *Connection, call *llm.ToolCallContent) (llm.ToolExecutionResult, error) {
	return g.invoke(ctx, conn, call)
}

func (g *Gateway) invoke(ctx context.Context, conn *Connection, call *llm.ToolCallContent) (llm.ToolExecutionResult, error) {
	args, err := call.ArgumentsMap()
	if err != nil {
		return llm.ToolExecutionResult{
			ID:      call.ID,
			Content: []llm.ResultItem{llm.NewTextResultItem(fmt.Sprintf("invalid tool arguments: %v", err))},
			IsError: true,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.InvokeTimeout)
	defer cancel()

	callResult, err := conn.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      call.Name,
			Arguments: args,
		},
	})
	if err != nil {
		return llm.ToolExecutionResult{}, err
	}

	return llm.ToolExecutionResult{
		ID:      call.ID,
		Content: convertContent(callResult.Content),
		IsError: callResult.IsError,
	}, nil
}

// evict drops a cached connection and closes its transport.
func (g *Gateway) evict(callerKey string) {
	g.mu.Lock()
	conn, ok := g.connections[callerKey]
	if ok {
		delete(g.connections, callerKey)
	}
	g.mu.Unlock()

	if ok {
		if err := conn.client.Close(); err != nil {
			g.logger.Debug("failed to close evicted tool connection",
				"caller_key", callerKey,
				"error", err)
		}
	}
}

// Close tears down every cached connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	connections := g.connections
	g.connections = make(map[string]*Connection)
	g.mu.Unlock()

	var firstErr error
	for key, conn := range connections {
		if err := conn.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection for %s: %w", key, err)
		}
	}
	return firstErr
}

// isSessionStale reports whether an error indicates the backend no
// longer recognizes the presented session id.
func isSessionStale(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "session not found") ||
		strings.Contains(message, "invalid session") ||
		strings.Contains(message, "missing session") ||
		strings.Contains(message, "session expired") ||
		strings.Contains(message, "404")
}
