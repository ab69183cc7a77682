package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// PluginTiming records how long a single plugin took to evaluate.
type PluginTiming struct {
	Plugin string
	Ms     uint32
}

// Result is the raw outcome of running the pipeline, before audit
// suppression is applied by the caller.
type Result struct {
	Outcome  Outcome
	BlockedBy string
	Timings  []PluginTiming
	LatencyMs uint32
	WarnExceeded bool
}

// Pipeline runs an ordered list of plugins against a request, stopping at
// the first Block. It is the single place that enforces the deterministic
// first-blocker-wins attribution invariant.
type Pipeline struct {
	plugins  []Plugin
	warnMs   time.Duration
	logger   *slog.Logger
}

// New builds a Pipeline over plugins in the given order. warnMs is the
// per-plugin warn threshold; it never cancels a plugin, only logs.
func New(plugins []Plugin, warnMs time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{plugins: plugins, warnMs: warnMs, logger: logger}
}

// Plugins returns the configured plugin order, used by callers that need
// the full list independent of any single run (e.g. /healthz's
// pluginCount).
func (p *Pipeline) Plugins() []Plugin {
	return p.plugins
}

// Run executes the pipeline against ec, recording a timing entry per
// plugin actually invoked and stopping at the first Block. A panic or
// unexpected error inside a plugin is converted to Allow for availability;
// the plugin still receives a timing entry for time spent before the
// failure.
func (p *Pipeline) Run(ctx context.Context, ec *evalctx.EvaluationContext) Result {
	start := time.Now()
	timings := make([]PluginTiming, 0, len(p.plugins))
	var final Outcome
	var blockedBy string

	for _, pl := range p.plugins {
		pluginStart := time.Now()
		outcome := p.safeEvaluate(ctx, pl, ec)
		elapsed := time.Since(pluginStart)

		timings = append(timings, PluginTiming{Plugin: pl.Name(), Ms: uint32(elapsed.Milliseconds())})

		if p.warnMs > 0 && elapsed > p.warnMs {
			p.logger.Warn("plugin exceeded warn threshold", "plugin", pl.Name(), "elapsed_ms", elapsed.Milliseconds())
		}

		if outcome.Block {
			final = outcome
			blockedBy = pl.Name()
			break
		}
	}

	return Result{
		Outcome:      final,
		BlockedBy:    blockedBy,
		Timings:      timings,
		LatencyMs:    uint32(time.Since(start).Milliseconds()),
		WarnExceeded: ec.Exceeded(),
	}
}

// safeEvaluate invokes pl.Evaluate, recovering from a panic and converting
// it to Allow so that one misbehaving plugin never takes the whole pipeline
// down.
func (p *Pipeline) safeEvaluate(ctx context.Context, pl Plugin, ec *evalctx.EvaluationContext) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("plugin panicked, treating as allow", "plugin", pl.Name(), "panic", fmt.Sprint(r))
			outcome = Allow
		}
	}()
	return pl.Evaluate(ctx, ec)
}
