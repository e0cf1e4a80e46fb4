package proxy

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arcfield/go-llmgate/pkg/llm"
)

// DefaultRoundCap bounds the number of tool rounds in one turn.
const DefaultRoundCap = 5

const (
	// DefaultUpstreamTimeout bounds one upstream call, buffered or
	// streamed end to end.
	DefaultUpstreamTimeout = 2 * time.Minute
	// DefaultToolTimeout bounds one tool invocation, including lazy
	// connection establishment.
	DefaultToolTimeout = 30 * time.Second
)

// Config holds the orchestrator settings. The zero value is usable;
// zero fields fall back to the defaults above.
type Config struct {
	// RoundCap is the maximum number of tool rounds per turn. A turn
	// that asks for more ends gracefully with the last available text.
	RoundCap int

	// UpstreamTimeout bounds each upstream provider call.
	UpstreamTimeout time.Duration

	// ToolTimeout bounds each tool invocation.
	ToolTimeout time.Duration

	// CostInputPerMillion and CostOutputPerMillion price usage reports,
	// in currency units per million tokens. Zero rates report zero cost.
	CostInputPerMillion  float64
	CostOutputPerMillion float64
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		RoundCap:        DefaultRoundCap,
		UpstreamTimeout: DefaultUpstreamTimeout,
		ToolTimeout:     DefaultToolTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.RoundCap <= 0 {
		c.RoundCap = DefaultRoundCap
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// costOf prices accumulated usage with the configured per-million rates.
func (c Config) costOf(usage llm.Usage) float64 {
	return float64(usage.InputTokens)*c.CostInputPerMillion/1_000_000 +
		float64(usage.OutputTokens)*c.CostOutputPerMillion/1_000_000
}

// fileConfig is the YAML shape of Config. Timeouts are whole seconds.
type fileConfig struct {
	RoundCap               int     `yaml:"round_cap"`
	UpstreamTimeoutSeconds int     `yaml:"upstream_timeout_seconds"`
	ToolTimeoutSeconds     int     `yaml:"tool_timeout_seconds"`
	CostInputPerMillion    float64 `yaml:"cost_input_per_million"`
	CostOutputPerMillion   float64 `yaml:"cost_output_per_million"`
}

// LoadConfig reads orchestrator settings from an optional YAML file,
// then applies environment overrides (PROXY_ROUND_CAP,
// PROXY_UPSTREAM_TIMEOUT, PROXY_TOOL_TIMEOUT in seconds,
// PROXY_COST_INPUT_PER_MILLION, PROXY_COST_OUTPUT_PER_MILLION). An
// empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read proxy config %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("failed to parse proxy config %s: %w", path, err)
		}

		if fc.RoundCap > 0 {
			cfg.RoundCap = fc.RoundCap
		}
		if fc.UpstreamTimeoutSeconds > 0 {
			cfg.UpstreamTimeout = time.Duration(fc.UpstreamTimeoutSeconds) * time.Second
		}
		if fc.ToolTimeoutSeconds > 0 {
			cfg.ToolTimeout = time.Duration(fc.ToolTimeoutSeconds) * time.Second
		}
		if fc.CostInputPerMillion > 0 {
			cfg.CostInputPerMillion = fc.CostInputPerMillion
		}
		if fc.CostOutputPerMillion > 0 {
			cfg.CostOutputPerMillion = fc.CostOutputPerMillion
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, err := strconv.Atoi(os.Getenv("PROXY_ROUND_CAP")); err == nil && v > 0 {
		cfg.RoundCap = v
	}
	if v, err := strconv.Atoi(os.Getenv("PROXY_UPSTREAM_TIMEOUT")); err == nil && v > 0 {
		cfg.UpstreamTimeout = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("PROXY_TOOL_TIMEOUT")); err == nil && v > 0 {
		cfg.ToolTimeout = time.Duration(v) * time.Second
	}
	if v, err := strconv.ParseFloat(os.Getenv("PROXY_COST_INPUT_PER_MILLION"), 64); err == nil && v > 0 {
		cfg.CostInputPerMillion = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("PROXY_COST_OUTPUT_PER_MILLION"), 64); err == nil && v > 0 {
		cfg.CostOutputPerMillion = v
	}
}
