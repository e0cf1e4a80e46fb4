// Package modifier applies per-tool response templates to raw tool
// output before it re-enters the conversation. Templates are handlebars
// strings owned by a tool assignment; a missing template means pass
// through unmodified. Template authors can never break tool execution:
// any parse or render failure returns the original result unchanged.
package modifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mailgun/raymond/v2"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// Engine renders response modifier templates. It holds no template
// state of its own, so one engine serves all requests concurrently.
type Engine struct {
	logger *slog.Logger
}

// New creates a modifier engine. A nil logger falls back to the default.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply renders the template against the tool result and returns the
// rewritten result. An empty template is the identity. Whenever the
// template fails to parse or render, the original result is returned
// unchanged; that fallback is not configurable.
func (e *Engine) Apply(template string, result llm.ToolExecutionResult) llm.ToolExecutionResult {
	if template == "" {
		return result
	}

	rendered, err := render(template, result.Content)
	if err != nil {
		e.logger.Debug("response modifier failed, keeping original tool output",
			"tool_call_id", result.ID,
			"error", err)
		return result
	}

	return llm.ToolExecutionResult{
		ID:      result.ID,
		Content: parseRendered(rendered),
		IsError: result.IsError,
	}
}

// render executes the template with the result content exposed as
// `response`. Panics inside the template engine or a helper are
// converted to errors so Apply can fall back.
func render(source string, content []llm.ResultItem) (rendered string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("template panicked: %v", r)
		}
	}()

	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", err
	}
	tpl.RegisterHelpers(templateHelpers())

	ctx, err := templateContext(content)
	if err != nil {
		return "", err
	}
	return tpl.Exec(ctx)
}

// templateContext converts the result items into the plain maps the
// template addresses, keyed by their wire names (type, text, data,
// mime_type, value).
func templateContext(content []llm.ResultItem) (map[string]interface{}, error) {
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var items []interface{}
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, err
	}
	return map[string]interface{}{"response": items}, nil
}

// parseRendered decides what the rendered text becomes. JSON output
// turns into structured content so the next provider encode treats it
// as data; anything else is a single text item.
func parseRendered(rendered string) []llm.ResultItem {
	trimmed := strings.TrimSpace(rendered)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return []llm.ResultItem{llm.NewTextResultItem(rendered)}
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []llm.ResultItem
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil && allTyped(items) {
			return items
		}
		var elements []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &elements); err == nil {
			out := make([]llm.ResultItem, 0, len(elements))
			for _, element := range elements {
				out = append(out, llm.NewStructuredResultItem(element))
			}
			return out
		}
	}

	return []llm.ResultItem{llm.NewStructuredResultItem(json.RawMessage(trimmed))}
}

func allTyped(items []llm.ResultItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Type == "" {
			return false
		}
	}
	return true
}
