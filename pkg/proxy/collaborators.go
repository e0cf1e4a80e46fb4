package proxy

import (
	"context"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Limiter is consulted once per request, before any upstream call. A
// non-nil error denies the request; the orchestrator converts it into a
// limit-exceeded failure. Limiting policy and bookkeeping live entirely
// on the other side of this interface.
type Limiter interface {
	Check(ctx context.Context, caller llm.CallerContext, estimatedTokens int) error
}

// UsageReport summarizes one finished interaction. Token totals are
// accumulated across every tool round of the turn.
type UsageReport struct {
	InteractionID string            `json:"interaction_id"`
	Caller        llm.CallerContext `json:"caller"`
	Model         string            `json:"model"`
	InputTokens   int               `json:"input_tokens"`
	OutputTokens  int               `json:"output_tokens"`
	Cost          float64           `json:"cost"`
}

// UsageReporter receives post-hoc usage reports. Reports are delivered
// fire-and-forget from a separate goroutine; a slow or failing reporter
// never delays or fails the response.
type UsageReporter interface {
	Report(ctx context.Context, report UsageReport)
}

// TemplateSource resolves the response modifier template for a caller
// and tool pair. An empty string means no template is assigned.
type TemplateSource interface {
	Template(caller llm.CallerContext, toolName string) string
}

// ToolExecutor runs one tool call on behalf of a caller. The gateway
// package provides the production implementation; backend failures are
// expected to come back as IsError results, reserving the error return
// for unreachable backends and cancellation.
type ToolExecutor interface {
	Execute(ctx context.Context, caller llm.CallerContext, call *llm.ToolCallContent) (llm.ToolExecutionResult, error)
}

type allowAllLimiter struct{}

func (allowAllLimiter) Check(context.Context, llm.CallerContext, int) error { return nil }

type discardReporter struct{}

func (discardReporter) Report(context.Context, UsageReport) {}

type noTemplates struct{}

func (noTemplates) Template(llm.CallerContext, string) string { return "" }
