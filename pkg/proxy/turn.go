package proxy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcfield/go-llmgate/pkg/llm"
	"github.com/arcfield/go-llmgate/pkg/tokenizer"
)

// turn holds the state of one conversation turn: the growing message
// list, the call ids executed so far, and the usage accumulated across
// rounds. The upstream call and each tool invocation are its only
// suspension points.
type turn struct {
	p      *Proxy
	req    llm.Request
	id     string
	caller llm.CallerContext

	messages []llm.Message
	seen     map[string]bool
	rounds   int
	usage    llm.Usage
	lastText string
	model    string
}

// begin validates the request and runs the pre-flight limit check.
func (p *Proxy) begin(ctx context.Context, req llm.Request) (*turn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &turn{
		p:        p,
		req:      req,
		id:       uuid.NewString(),
		caller:   req.Caller,
		messages: append([]llm.Message(nil), req.Messages...),
		seen:     make(map[string]bool),
		model:    req.Model,
	}

	estimated := tokenizer.ForModel(p.protocol, req.Model).CountMessages(t.messages)
	if err := p.limiter.Check(ctx, t.caller, estimated); err != nil {
		if !llm.IsLimitExceeded(err) {
			err = llm.NewLimitExceededError(err.Error())
		}
		p.logger.Info("request denied by limiter",
			"interaction_id", t.id,
			"estimated_tokens", estimated)
		return nil, err
	}

	p.logger.Debug("turn started",
		"interaction_id", t.id,
		"protocol", p.protocol,
		"messages", len(t.messages),
		"estimated_tokens", estimated)
	return t, nil
}

// callUpstream performs one buffered provider call under the configured
// deadline.
func (t *turn) callUpstream(ctx context.Context) (*llm.Response, error) {
	req := t.req
	req.Messages = t.messages
	req.Stream = false

	ctx, cancel := context.WithTimeout(ctx, t.p.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := t.p.client.ChatCompletion(ctx, req)
	t.p.metrics.observeUpstream(time.Since(start))
	return resp, err
}

// streamRound is what one streamed upstream call produced.
type streamRound struct {
	text       string
	calls      []*llm.ToolCallContent
	stopReason llm.StopReason
	errored    bool
}

// assistantMessage reconstructs the assistant message of the round so
// the next upstream call sees the text and calls the tool results
// refer to.
func (r streamRound) assistantMessage() llm.Message {
	msg := llm.NewToolCallMessage(r.calls...)
	if r.text != "" {
		msg.Content = append([]llm.MessageContent{llm.NewTextContent(r.text)}, msg.Content...)
	}
	return msg
}

// streamUpstream performs one streamed provider call, forwarding text
// deltas to the caller as they arrive and buffering completed tool
// calls for the round.
func (t *turn) streamUpstream(ctx context.Context, out chan<- llm.StreamEvent) (streamRound, error) {
	req := t.req
	req.Messages = t.messages
	req.Stream = true

	callCtx, cancel := context.WithTimeout(ctx, t.p.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	events, err := t.p.client.StreamChatCompletion(callCtx, req)
	if err != nil {
		return streamRound{}, err
	}

	var round streamRound
	var text strings.Builder
	for event := range events {
		switch {
		case event.IsDelta():
			text.WriteString(event.Delta.Text())
			t.p.send(callCtx, out, event)
		case event.IsToolCalls():
			round.calls = append(round.calls, event.ToolCalls...)
		case event.IsDone():
			round.stopReason = event.StopReason
			if event.Usage != nil {
				t.usage.Add(*event.Usage)
			}
		case event.IsError():
			t.p.send(callCtx, out, event)
			round.errored = true
		}
	}
	t.p.metrics.observeUpstream(time.Since(start))

	round.text = text.String()
	if round.text != "" {
		t.lastText = round.text
	}
	return round, nil
}

// absorb folds one buffered response into the turn state.
func (t *turn) absorb(resp *llm.Response) {
	t.usage.Add(resp.Usage)
	if text := resp.Message.GetText(); text != "" {
		t.lastText = text
	}
	if resp.Model != "" {
		t.model = resp.Model
	}
}

// repeatedCall returns the first call id that a previous round of this
// turn already executed. The guard only catches exact id repeats;
// distinct ids with equivalent arguments pass.
func (t *turn) repeatedCall(calls []*llm.ToolCallContent) string {
	for _, call := range calls {
		if t.seen[call.ID] {
			return call.ID
		}
	}
	return ""
}

// executeRound runs every call of one model turn. Calls execute
// independently and results keep call order; a failed call becomes an
// error-flagged result rather than aborting the round. Only caller
// cancellation returns an error.
func (t *turn) executeRound(ctx context.Context, calls []*llm.ToolCallContent) ([]*llm.ToolResultContent, error) {
	results := make([]*llm.ToolResultContent, len(calls))

	// Invocations survive caller cancellation: each finishes on its own
	// deadline, and abandoned results are dropped with the turn.
	toolCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, call := range calls {
		t.seen[call.ID] = true
		wg.Add(1)
		go func(i int, call *llm.ToolCallContent) {
			defer wg.Done()
			results[i] = t.executeCall(toolCtx, call)
		}(i, call)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.rounds++
	return results, nil
}

// executeCall invokes one tool and applies the caller's response
// template to its output. Executor errors become error-flagged results
// so the model can react to them.
func (t *turn) executeCall(ctx context.Context, call *llm.ToolCallContent) *llm.ToolResultContent {
	ctx, cancel := context.WithTimeout(ctx, t.p.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	result, err := t.p.executor.Execute(ctx, t.caller, call)
	t.p.metrics.observeTool(time.Since(start))
	if err != nil {
		t.p.logger.Warn("tool execution failed",
			"interaction_id", t.id,
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error", err)
		return llm.NewToolResultText(call.ID, err.Error(), true)
	}
	if result.ID == "" {
		result.ID = call.ID
	}

	if template := t.p.templates.Template(t.caller, call.Name); template != "" {
		result = t.p.modifier.Apply(template, result)
	}
	return result.AsContent()
}

// finalize assembles the turn's response, prices it, and hands the
// usage report off. The interaction id is stable across all rounds.
func (t *turn) finalize(ctx context.Context, message llm.Message, stop llm.StopReason) *llm.Response {
	resp := &llm.Response{
		ID:         t.id,
		Model:      t.model,
		Message:    message,
		StopReason: stop,
		Usage:      t.usage,
	}

	t.p.report(ctx, t, resp)
	t.p.metrics.observeRequest(t.p.protocol, "ok")
	t.p.metrics.observeRounds(t.rounds)
	t.p.logger.Debug("turn finished",
		"interaction_id", t.id,
		"stop_reason", stop,
		"rounds", t.rounds,
		"total_tokens", t.usage.TotalTokens)
	return resp
}

// finalizeStream closes out a streamed turn with its single done event.
func (t *turn) finalizeStream(ctx context.Context, out chan<- llm.StreamEvent, stop llm.StopReason) {
	resp := t.finalize(ctx, llm.NewTextMessage(llm.RoleAssistant, t.lastText), stop)
	usage := resp.Usage
	t.p.send(ctx, out, llm.NewDoneEvent(stop, &usage))
}
