// Package plugin defines the plugin protocol, the built-in plugins, and the
// pipeline driver that runs them in configured order.
package plugin

import (
	"context"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// Outcome is the tagged result of a single plugin evaluation: either Allow
// or Block with a structured diagnostic record.
type Outcome struct {
	Block        bool
	ReasonCode   uint32
	Reason       string
	Diagnostics  map[string]interface{}
}

// Allow is the zero-value non-blocking outcome.
var Allow = Outcome{}

// BlockWith constructs a blocking Outcome. diagnostics must at minimum
// carry "plugin" and "code"; callers are expected to set those.
func BlockWith(reasonCode uint32, reason string, diagnostics map[string]interface{}) Outcome {
	return Outcome{
		Block:       true,
		ReasonCode:  reasonCode,
		Reason:      reason,
		Diagnostics: diagnostics,
	}
}

// Plugin is the uniform capability every pipeline stage implements: given
// an evaluation context, produce an Outcome. Evaluate may suspend (the
// external-HTTP plugin is the only one that does); built-in plugins are
// synchronous-in-effect and return within microseconds.
type Plugin interface {
	Name() string
	Evaluate(ctx context.Context, ec *evalctx.EvaluationContext) Outcome
}

// Func adapts an ordinary function to the Plugin interface, mirroring the
// http.HandlerFunc-style adapter the teacher's action.ActionInterceptorFunc
// uses for inline interceptors.
type Func struct {
	PluginName string
	Fn         func(ctx context.Context, ec *evalctx.EvaluationContext) Outcome
}

// Name returns the plugin's configured name.
func (f Func) Name() string { return f.PluginName }

// Evaluate calls the wrapped function.
func (f Func) Evaluate(ctx context.Context, ec *evalctx.EvaluationContext) Outcome {
	return f.Fn(ctx, ec)
}

var _ Plugin = Func{}

// truncateDetail caps a diagnostic detail snippet at 128 characters per the
// built-in plugins table.
func truncateDetail(s string) string {
	const maxLen = 128
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
