package plugin

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

func TestPipeline_Run_StopsAtFirstBlock(t *testing.T) {
	t.Parallel()

	var ran []string
	record := func(name string, outcome Outcome) Plugin {
		return Func{PluginName: name, Fn: func(_ context.Context, _ *evalctx.EvaluationContext) Outcome {
			ran = append(ran, name)
			return outcome
		}}
	}

	p := New([]Plugin{
		record("exfil", Allow),
		record("secrets", BlockWith(201, "blocked", map[string]interface{}{"plugin": "secrets"})),
		record("pii", Allow),
	}, time.Second, slog.Default())

	ec := newTestContext(&evalctx.Request{}, &evalctx.Matchers{})
	result := p.Run(context.Background(), ec)

	if !result.Outcome.Block || result.BlockedBy != "secrets" {
		t.Errorf("Run() = %+v, want block attributed to secrets", result)
	}
	if len(ran) != 2 {
		t.Errorf("plugins ran = %v, want exactly [exfil secrets] (pii should not run)", ran)
	}
	if len(result.Timings) != 2 {
		t.Errorf("len(Timings) = %d, want 2", len(result.Timings))
	}
}

func TestPipeline_Run_AllAllow(t *testing.T) {
	t.Parallel()

	p := New([]Plugin{
		Func{PluginName: "a", Fn: func(_ context.Context, _ *evalctx.EvaluationContext) Outcome { return Allow }},
		Func{PluginName: "b", Fn: func(_ context.Context, _ *evalctx.EvaluationContext) Outcome { return Allow }},
	}, time.Second, slog.Default())

	result := p.Run(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if result.Outcome.Block {
		t.Errorf("Run() = %+v, want Allow when every plugin allows", result)
	}
	if len(result.Timings) != 2 {
		t.Errorf("len(Timings) = %d, want 2", len(result.Timings))
	}
}

func TestPipeline_Run_PanicIsContainedAsAllow(t *testing.T) {
	t.Parallel()

	p := New([]Plugin{
		Func{PluginName: "panicky", Fn: func(_ context.Context, _ *evalctx.EvaluationContext) Outcome {
			panic("boom")
		}},
		Func{PluginName: "after", Fn: func(_ context.Context, _ *evalctx.EvaluationContext) Outcome { return Allow }},
	}, time.Second, slog.Default())

	result := p.Run(context.Background(), newTestContext(&evalctx.Request{}, &evalctx.Matchers{}))
	if result.Outcome.Block {
		t.Errorf("Run() = %+v, want a panicking plugin to be treated as Allow", result)
	}
	if len(result.Timings) != 2 {
		t.Errorf("len(Timings) = %d, want both plugins (including the panicking one) to get a timing entry", len(result.Timings))
	}
}

func TestPipeline_Plugins(t *testing.T) {
	t.Parallel()

	plugins := []Plugin{NewExfil(), NewSecrets()}
	p := New(plugins, time.Second, nil)
	if len(p.Plugins()) != 2 {
		t.Errorf("len(Plugins()) = %d, want 2", len(p.Plugins()))
	}
}
