package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
	"github.com/sentra-security/sentra/internal/domain/plugin"
)

type fakeMetrics struct {
	mu           sync.Mutex
	requests     int
	blocks       int
	auditSupp    int
	pluginBlocks []string
}

func (f *fakeMetrics) IncRequests()                               { f.mu.Lock(); f.requests++; f.mu.Unlock() }
func (f *fakeMetrics) IncBlocks()                                 { f.mu.Lock(); f.blocks++; f.mu.Unlock() }
func (f *fakeMetrics) IncAuditSuppressed()                        { f.mu.Lock(); f.auditSupp++; f.mu.Unlock() }
func (f *fakeMetrics) IncTelemetryLines()                         {}
func (f *fakeMetrics) IncTelemetryWriteErrors()                   {}
func (f *fakeMetrics) IncPluginBlock(name string)                 { f.mu.Lock(); f.pluginBlocks = append(f.pluginBlocks, name); f.mu.Unlock() }
func (f *fakeMetrics) ObserveRequestLatency(ms uint32)             {}
func (f *fakeMetrics) ObservePluginTiming(name string, ms uint32) {}

type fakeSink struct {
	mu     sync.Mutex
	events []interface{}
	audits []interface{}
}

func (f *fakeSink) EmitEvent(payload interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload)
	return true
}

func (f *fakeSink) EmitAudit(payload interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, payload)
	return true
}

func blockingPipeline(pluginName string) *plugin.Pipeline {
	return plugin.New([]plugin.Plugin{
		plugin.Func{PluginName: pluginName, Fn: func(_ context.Context, _ *evalctx.EvaluationContext) plugin.Outcome {
			return plugin.BlockWith(111, "blocked for test", map[string]interface{}{"plugin": pluginName})
		}},
	}, time.Second, slog.Default())
}

func allowingPipeline() *plugin.Pipeline {
	return plugin.New([]plugin.Plugin{
		plugin.Func{PluginName: "noop", Fn: func(_ context.Context, _ *evalctx.EvaluationContext) plugin.Outcome {
			return plugin.Allow
		}},
	}, time.Second, slog.Default())
}

func TestEvaluationService_Evaluate_Allow(t *testing.T) {
	t.Parallel()

	metrics := &fakeMetrics{}
	sink := &fakeSink{}
	svc := New(allowingPipeline(), &evalctx.Matchers{}, time.Second, false, sink, metrics, nil)

	resp := svc.Evaluate(context.Background(), &evalctx.Request{
		ToolDefinition: evalctx.ToolDefinition{Name: "read_file"},
	}, "corr-1")

	if resp.BlockAction {
		t.Errorf("Evaluate() = %+v, want BlockAction false", resp)
	}
	if metrics.requests != 1 {
		t.Errorf("requests = %d, want 1", metrics.requests)
	}
	if len(sink.events) != 1 {
		t.Errorf("len(sink.events) = %d, want 1", len(sink.events))
	}
}

func TestEvaluationService_Evaluate_Block(t *testing.T) {
	t.Parallel()

	metrics := &fakeMetrics{}
	sink := &fakeSink{}
	svc := New(blockingPipeline("secrets"), &evalctx.Matchers{}, time.Second, false, sink, metrics, nil)

	resp := svc.Evaluate(context.Background(), &evalctx.Request{}, "corr-2")

	if !resp.BlockAction || resp.BlockedBy == nil || *resp.BlockedBy != "secrets" {
		t.Errorf("Evaluate() = %+v, want a block attributed to secrets", resp)
	}
	if metrics.blocks != 1 {
		t.Errorf("blocks = %d, want 1", metrics.blocks)
	}
	if len(metrics.pluginBlocks) != 1 || metrics.pluginBlocks[0] != "secrets" {
		t.Errorf("pluginBlocks = %v, want [secrets]", metrics.pluginBlocks)
	}
}

func TestEvaluationService_Evaluate_AuditOnlySuppressesOutwardBlock(t *testing.T) {
	t.Parallel()

	metrics := &fakeMetrics{}
	sink := &fakeSink{}
	svc := New(blockingPipeline("pii"), &evalctx.Matchers{}, time.Second, true, sink, metrics, nil)

	resp := svc.Evaluate(context.Background(), &evalctx.Request{}, "corr-3")

	if resp.BlockAction {
		t.Errorf("Evaluate() = %+v, want BlockAction false under audit-only suppression", resp)
	}
	if metrics.auditSupp != 1 {
		t.Errorf("auditSupp = %d, want 1", metrics.auditSupp)
	}
	if len(sink.audits) != 1 {
		t.Errorf("len(sink.audits) = %d, want 1 extra audit line for the suppressed block", len(sink.audits))
	}
}

func TestEvaluationService_Reload_TakesEffectForSubsequentCalls(t *testing.T) {
	t.Parallel()

	svc := New(allowingPipeline(), &evalctx.Matchers{}, time.Second, false, nil, nil, nil)

	if resp := svc.Evaluate(context.Background(), &evalctx.Request{}, ""); resp.BlockAction {
		t.Fatalf("Evaluate() = %+v, want Allow before Reload", resp)
	}

	svc.Reload(blockingPipeline("policy_pack"), &evalctx.Matchers{})

	resp := svc.Evaluate(context.Background(), &evalctx.Request{}, "")
	if !resp.BlockAction {
		t.Errorf("Evaluate() = %+v, want a block after Reload swapped in a blocking pipeline", resp)
	}
}

func TestEvaluationService_PluginCount(t *testing.T) {
	t.Parallel()

	svc := New(allowingPipeline(), &evalctx.Matchers{}, time.Second, false, nil, nil, nil)
	if svc.PluginCount() != 1 {
		t.Errorf("PluginCount() = %d, want 1", svc.PluginCount())
	}
}
