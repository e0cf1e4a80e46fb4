package proxy

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcfield/go-llmgate/pkg/llm"
	"github.com/arcfield/go-llmgate/pkg/modifier"
)

// Proxy drives conversation turns against one upstream client,
// intercepting tool calls and folding their results back into the
// conversation until the model produces a final answer. One Proxy
// serves any number of concurrent requests; per-request state lives in
// the turn, never on the Proxy.
type Proxy struct {
	client   llm.Client
	protocol llm.Protocol
	cfg      Config

	limiter   Limiter
	reporter  UsageReporter
	templates TemplateSource
	executor  ToolExecutor
	modifier  *modifier.Engine

	logger  *slog.Logger
	metrics *proxyMetrics
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithConfig replaces the orchestrator settings. Zero fields keep
// their defaults.
func WithConfig(cfg Config) Option {
	return func(p *Proxy) { p.cfg = cfg }
}

// WithLimiter installs the pre-flight limit collaborator.
func WithLimiter(l Limiter) Option {
	return func(p *Proxy) {
		if l != nil {
			p.limiter = l
		}
	}
}

// WithUsageReporter installs the post-hoc usage collaborator.
func WithUsageReporter(r UsageReporter) Option {
	return func(p *Proxy) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithTemplateSource installs the response modifier template resolver.
func WithTemplateSource(s TemplateSource) Option {
	return func(p *Proxy) {
		if s != nil {
			p.templates = s
		}
	}
}

// WithToolExecutor installs the tool backend. Without one, tool calls
// pass through to the caller instead of being intercepted.
func WithToolExecutor(e ToolExecutor) Option {
	return func(p *Proxy) { p.executor = e }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics registers orchestrator metrics on the given registry.
func WithMetrics(registry *prometheus.Registry) Option {
	return func(p *Proxy) { p.metrics = newProxyMetrics(registry) }
}

// New creates a proxy for a protocol and its upstream client. All
// collaborators default to no-ops, so a bare proxy is a plain
// translation pass-through.
func New(protocol llm.Protocol, client llm.Client, opts ...Option) *Proxy {
	p := &Proxy{
		client:    client,
		protocol:  protocol,
		cfg:       DefaultConfig(),
		limiter:   allowAllLimiter{},
		reporter:  discardReporter{},
		templates: noTemplates{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg = p.cfg.withDefaults()
	p.modifier = modifier.New(p.logger)
	return p
}

// Complete runs one buffered conversation turn. Tool calls requested by
// the model are executed and their results folded back until the model
// answers with text, a repeated call id ends the turn, or the round cap
// is hit.
func (p *Proxy) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	t, err := p.begin(ctx, req)
	if err != nil {
		p.metrics.observeRequest(p.protocol, outcomeFor(err))
		return nil, err
	}

	for {
		resp, err := t.callUpstream(ctx)
		if err != nil {
			p.metrics.observeRequest(p.protocol, outcomeFor(err))
			return nil, err
		}
		t.absorb(resp)

		calls := resp.ToolCalls()
		if len(calls) == 0 || p.executor == nil {
			return t.finalize(ctx, resp.Message, resp.StopReason), nil
		}

		if repeated := t.repeatedCall(calls); repeated != "" {
			p.logger.Warn("tool loop detected, ending turn",
				"interaction_id", t.id,
				"tool_call_id", repeated)
			return t.finalize(ctx, llm.NewTextMessage(llm.RoleAssistant, t.lastText), llm.StopReasonToolLoop), nil
		}
		if t.rounds >= p.cfg.RoundCap {
			p.logger.Warn("tool round cap reached, ending turn",
				"interaction_id", t.id,
				"rounds", t.rounds)
			return t.finalize(ctx, llm.NewTextMessage(llm.RoleAssistant, t.lastText), llm.StopReasonRoundLimit), nil
		}

		results, err := t.executeRound(ctx, calls)
		if err != nil {
			return nil, err
		}
		t.messages = append(t.messages, resp.Message)
		t.messages = append(t.messages, llm.NewToolResultMessage(results...))
	}
}

// Stream runs one conversation turn in streaming mode. Text deltas are
// forwarded to the caller as they arrive, across all tool rounds; tool
// calls are intercepted and executed without ever surfacing as raw
// provider syntax. The returned channel ends with a single done event,
// or an error event on upstream failure.
func (p *Proxy) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	t, err := p.begin(ctx, req)
	if err != nil {
		p.metrics.observeRequest(p.protocol, outcomeFor(err))
		return nil, err
	}

	out := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(out)
		p.runStream(ctx, t, out)
	}()
	return out, nil
}

func (p *Proxy) runStream(ctx context.Context, t *turn, out chan<- llm.StreamEvent) {
	for {
		round, err := t.streamUpstream(ctx, out)
		if err != nil {
			p.metrics.observeRequest(p.protocol, outcomeFor(err))
			p.send(ctx, out, llm.NewErrorEvent(err))
			return
		}
		if round.errored {
			// The upstream error event is already forwarded.
			p.metrics.observeRequest(p.protocol, "error")
			return
		}
		if ctx.Err() != nil {
			// Caller is gone; buffered tool state is discarded.
			return
		}

		if len(round.calls) == 0 || p.executor == nil {
			if len(round.calls) > 0 {
				p.send(ctx, out, llm.NewToolCallsEvent(round.calls))
			}
			t.finalizeStream(ctx, out, round.stopReason)
			return
		}

		if repeated := t.repeatedCall(round.calls); repeated != "" {
			p.logger.Warn("tool loop detected, ending turn",
				"interaction_id", t.id,
				"tool_call_id", repeated)
			t.finalizeStream(ctx, out, llm.StopReasonToolLoop)
			return
		}
		if t.rounds >= p.cfg.RoundCap {
			p.logger.Warn("tool round cap reached, ending turn",
				"interaction_id", t.id,
				"rounds", t.rounds)
			t.finalizeStream(ctx, out, llm.StopReasonRoundLimit)
			return
		}

		results, err := t.executeRound(ctx, round.calls)
		if err != nil {
			return
		}
		t.messages = append(t.messages, round.assistantMessage())
		t.messages = append(t.messages, llm.NewToolResultMessage(results...))
	}
}

// report delivers the usage report from its own goroutine, detached
// from the caller's cancellation. Reporter panics are contained here.
func (p *Proxy) report(ctx context.Context, t *turn, resp *llm.Response) {
	report := UsageReport{
		InteractionID: t.id,
		Caller:        t.caller,
		Model:         resp.Model,
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		Cost:          p.cfg.costOf(resp.Usage),
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("usage reporter panicked",
					"interaction_id", report.InteractionID,
					"panic", r)
			}
		}()
		p.reporter.Report(ctx, report)
	}()
}

func (p *Proxy) send(ctx context.Context, out chan<- llm.StreamEvent, event llm.StreamEvent) {
	select {
	case out <- event:
	case <-ctx.Done():
	}
}

func outcomeFor(err error) string {
	switch {
	case llm.IsLimitExceeded(err):
		return "limited"
	case llm.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}
