package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Client implements the llm.Client interface with scripted playback.
// All methods are safe for concurrent use.
type Client struct {
	model string

	mu            sync.Mutex
	responses     []llm.Response
	responseIndex int
	errors        []error
	errorIndex    int
	streams       [][]llm.StreamEvent
	streamIndex   int
	callLog       []llm.Request
	callCounter   int
	latency       time.Duration
}

// NewClient creates a new scripted client. The configured model name is
// echoed back on generated responses.
func NewClient(config llm.ClientConfig) (*Client, error) {
	model := config.Model
	if model == "" {
		model = "mock-model"
	}
	return &Client{model: model}, nil
}

// ChatCompletion plays back the next scripted error or response. When
// nothing is scripted it generates a deterministic default reply.
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.logCall(req)

	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}
	if err := c.nextError(); err != nil {
		return nil, err
	}
	if resp, ok := c.nextResponse(); ok {
		return resp, nil
	}

	resp := c.defaultResponse(req)
	return &resp, nil
}

// StreamChatCompletion plays back the next scripted stream. When none
// is queued it consumes the response queue instead, replaying the
// buffered response as deltas.
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	c.logCall(req)

	if err := c.nextError(); err != nil {
		return nil, err
	}

	events, ok := c.nextStream()
	if !ok {
		if resp, scripted := c.nextResponse(); scripted {
			events = eventsFromResponse(*resp)
		} else {
			events = eventsFromResponse(c.defaultResponse(req))
		}
	}

	ch := make(chan llm.StreamEvent, 10)

	go func() {
		defer close(ch)

		if err := c.simulateLatency(ctx); err != nil {
			return
		}
		for _, event := range events {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Remote reports the mock as always healthy.
func (c *Client) Remote() llm.ClientRemoteInfo {
	healthy := true
	now := time.Now()

	return llm.ClientRemoteInfo{
		Name: "mock",
		Status: &llm.ClientRemoteInfoStatus{
			Healthy:     &healthy,
			LastChecked: &now,
		},
	}
}

// Close implements the llm.Client interface. Nothing to release.
func (c *Client) Close() error {
	return nil
}

// WithResponse queues a response for playback. Missing ID, model, and
// stop reason fields are filled in at playback time.
func (c *Client) WithResponse(resp llm.Response) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
	return c
}

// WithTextResponse queues a plain text response.
func (c *Client) WithTextResponse(text string) *Client {
	return c.WithResponse(llm.Response{
		Message:    llm.NewTextMessage(llm.RoleAssistant, text),
		StopReason: llm.StopReasonStop,
		Usage:      scriptedUsage(text),
	})
}

// WithToolCall queues a response that requests a single tool call.
// Call ids are generated sequentially per client, so identical calls
// queued twice still carry distinct ids.
func (c *Client) WithToolCall(name string, args any) *Client {
	raw, err := json.Marshal(args)
	if err != nil || args == nil {
		raw = []byte("{}")
	}

	c.mu.Lock()
	c.callCounter++
	id := fmt.Sprintf("call_mock_%d", c.callCounter)
	c.mu.Unlock()

	return c.WithResponse(llm.Response{
		Message:    llm.NewToolCallMessage(llm.NewToolCallContent(id, name, raw)),
		StopReason: llm.StopReasonToolCalls,
		Usage:      scriptedUsage(name),
	})
}

// WithError queues an error for playback. Errors are consumed before
// responses.
func (c *Client) WithError(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
	return c
}

// WithStream queues an explicit stream script.
func (c *Client) WithStream(events ...llm.StreamEvent) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams = append(c.streams, events)
	return c
}

// WithLatency adds a delay before every reply. The delay honors
// context cancellation.
func (c *Client) WithLatency(d time.Duration) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
	return c
}

// GetCallLog returns a copy of all requests seen so far.
func (c *Client) GetCallLog() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := make([]llm.Request, len(c.callLog))
	copy(log, c.callLog)
	return log
}

// GetLastCall returns the most recent request, if any.
func (c *Client) GetLastCall() (llm.Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.callLog) == 0 {
		return llm.Request{}, false
	}
	return c.callLog[len(c.callLog)-1], true
}

// CallCount returns the number of requests seen so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callLog)
}

// Reset clears the call log and rewinds all playback queues.
func (c *Client) Reset() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callLog = nil
	c.responseIndex = 0
	c.errorIndex = 0
	c.streamIndex = 0
	return c
}

func (c *Client) logCall(req llm.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callLog = append(c.callLog, req)
}

func (c *Client) simulateLatency(ctx context.Context) error {
	c.mu.Lock()
	latency := c.latency
	c.mu.Unlock()

	if latency <= 0 {
		return nil
	}
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) nextError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorIndex >= len(c.errors) {
		return nil
	}
	err := c.errors[c.errorIndex]
	c.errorIndex++
	return err
}

// nextResponse pops the next scripted response. Playback hands out deep
// copies so callers can mutate results without corrupting the script.
func (c *Client) nextResponse() (*llm.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.responseIndex >= len(c.responses) {
		return nil, false
	}
	resp := c.responses[c.responseIndex].DeepCopy()
	c.responseIndex++

	if resp.ID == "" {
		resp.ID = fmt.Sprintf("mock-%d", c.responseIndex)
	}
	if resp.Model == "" {
		resp.Model = c.model
	}
	if resp.StopReason == "" {
		if resp.Message.HasToolCalls() {
			resp.StopReason = llm.StopReasonToolCalls
		} else {
			resp.StopReason = llm.StopReasonStop
		}
	}
	return &resp, true
}

func (c *Client) nextStream() ([]llm.StreamEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streamIndex >= len(c.streams) {
		return nil, false
	}
	events := c.streams[c.streamIndex]
	c.streamIndex++
	return events, true
}

// defaultResponse generates a deterministic reply when nothing is
// scripted.
func (c *Client) defaultResponse(req llm.Request) llm.Response {
	text := c.defaultText(req)

	return llm.Response{
		ID:         fmt.Sprintf("mock-%s", time.Now().Format(time.RFC3339Nano)),
		Model:      c.modelFor(req),
		Message:    llm.NewTextMessage(llm.RoleAssistant, text),
		StopReason: llm.StopReasonStop,
		Usage:      syntheticUsage(req, text),
	}
}

func (c *Client) defaultText(req llm.Request) string {
	if len(req.Messages) == 0 {
		return "This is a mock response."
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role == llm.RoleTool {
		if results := last.ToolResults(); len(results) > 0 {
			return fmt.Sprintf("Based on the tool result: %s", results[len(results)-1].GetText())
		}
	}

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != llm.RoleUser {
			continue
		}
		if text := req.Messages[i].GetText(); text != "" {
			return fmt.Sprintf("I understand you're asking about: %s. This is a mock response.", text)
		}
	}
	return "This is a mock response."
}

func (c *Client) modelFor(req llm.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

// eventsFromResponse replays a buffered response as a stream script.
func eventsFromResponse(resp llm.Response) []llm.StreamEvent {
	var events []llm.StreamEvent

	if text := resp.Message.GetText(); text != "" {
		events = append(events, llm.NewTextDeltaEvent(text))
	}
	if calls := resp.Message.ToolCalls(); len(calls) > 0 {
		events = append(events, llm.NewToolCallsEvent(calls))
	}

	usage := resp.Usage
	return append(events, llm.NewDoneEvent(resp.StopReason, &usage))
}

func scriptedUsage(text string) llm.Usage {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return llm.Usage{InputTokens: 10, OutputTokens: words, TotalTokens: 10 + words}
}

func syntheticUsage(req llm.Request, outputText string) llm.Usage {
	input := 0
	for _, msg := range req.Messages {
		input += len(strings.Fields(msg.GetText()))
	}
	output := len(strings.Fields(outputText))

	return llm.Usage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}
}

// CreateTextStream builds a stream script that delivers text word by
// word, the way real providers chunk their output.
func CreateTextStream(text string) []llm.StreamEvent {
	words := strings.Fields(text)
	events := make([]llm.StreamEvent, 0, len(words)+1)

	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		events = append(events, llm.NewTextDeltaEvent(word))
	}

	usage := llm.Usage{OutputTokens: len(words), TotalTokens: len(words)}
	return append(events, llm.NewDoneEvent(llm.StopReasonStop, &usage))
}

// CreateToolCallStream builds a stream script that delivers leading
// text followed by a tool call request.
func CreateToolCallStream(text, callID, toolName string, args any) []llm.StreamEvent {
	raw, err := json.Marshal(args)
	if err != nil || args == nil {
		raw = []byte("{}")
	}

	var events []llm.StreamEvent
	if text != "" {
		events = append(events, llm.NewTextDeltaEvent(text))
	}
	events = append(events, llm.NewToolCallsEvent([]*llm.ToolCallContent{
		llm.NewToolCallContent(callID, toolName, raw),
	}))
	return append(events, llm.NewDoneEvent(llm.StopReasonToolCalls, nil))
}
