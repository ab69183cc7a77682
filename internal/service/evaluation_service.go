// Package service wires the domain core — the plugin pipeline, the
// telemetry sink, and the metrics registry — into the single operation
// the HTTP adapter calls per request.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sentra-security/sentra/internal/domain/decision"
	"github.com/sentra-security/sentra/internal/domain/evalctx"
	"github.com/sentra-security/sentra/internal/domain/plugin"
)

// MetricsRecorder is the subset of the HTTP adapter's Metrics type the
// evaluation service needs, kept as an interface so this package does not
// import the transport adapter.
type MetricsRecorder interface {
	IncRequests()
	IncBlocks()
	IncAuditSuppressed()
	IncTelemetryLines()
	IncTelemetryWriteErrors()
	IncPluginBlock(plugin string)
	ObserveRequestLatency(ms uint32)
	ObservePluginTiming(plugin string, ms uint32)
}

// TelemetrySink is the subset of the telemetry sink the evaluation
// service needs. Both methods report whether the line was committed to
// disk successfully.
type TelemetrySink interface {
	EmitEvent(payload interface{}) bool
	EmitAudit(payload interface{}) bool
}

// EvaluationService runs the plugin pipeline against a validated request
// and produces both the outward response and the side effects (telemetry,
// metrics) the decision entails.
type EvaluationService struct {
	pipeline  atomic.Pointer[plugin.Pipeline]
	matchers  atomic.Pointer[evalctx.Matchers]
	budget    time.Duration
	auditOnly bool
	sink      TelemetrySink
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// New builds an EvaluationService.
func New(pipeline *plugin.Pipeline, matchers *evalctx.Matchers, budget time.Duration, auditOnly bool, sink TelemetrySink, metrics MetricsRecorder, logger *slog.Logger) *EvaluationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EvaluationService{
		budget:    budget,
		auditOnly: auditOnly,
		sink:      sink,
		metrics:   metrics,
		logger:    logger,
	}
	s.pipeline.Store(pipeline)
	s.matchers.Store(matchers)
	return s
}

// Reload atomically swaps in a freshly built pipeline and matcher set,
// taking effect for every evaluation started after the call returns. In-
// flight evaluations keep running against the pipeline they started with.
func (s *EvaluationService) Reload(pipeline *plugin.Pipeline, matchers *evalctx.Matchers) {
	s.pipeline.Store(pipeline)
	s.matchers.Store(matchers)
}

// PluginCount returns the number of configured plugins, used by /healthz.
func (s *EvaluationService) PluginCount() int {
	return len(s.pipeline.Load().Plugins())
}

// Evaluate runs req through the pipeline, records telemetry/metrics, and
// returns the outward AnalyzeResponse.
func (s *EvaluationService) Evaluate(ctx context.Context, req *evalctx.Request, correlationID string) decision.AnalyzeResponse {
	if s.metrics != nil {
		s.metrics.IncRequests()
	}

	ec := evalctx.New(req, correlationID, s.budget, s.matchers.Load())
	result := s.pipeline.Load().Run(ctx, ec)

	rec := s.buildRecord(result, correlationID)
	rec.RequestHash = requestHash(req)
	s.recordMetrics(result, rec)
	s.emitTelemetry(rec, req)

	return decision.FromRecord(rec)
}

// buildRecord converts a pipeline Result into the internal decision
// record, applying audit suppression per the audit-only invariant: a
// suppressed block still carries its full attribution internally.
func (s *EvaluationService) buildRecord(result plugin.Result, correlationID string) *decision.Record {
	timings := make([]decision.TimingEntry, 0, len(result.Timings))
	for _, t := range result.Timings {
		timings = append(timings, decision.TimingEntry{Plugin: t.Plugin, Ms: t.Ms})
	}

	rec := &decision.Record{
		BlockAction:   result.Outcome.Block,
		PluginTimings: timings,
		LatencyMs:     result.LatencyMs,
		SchemaVersion: decision.SchemaVersion,
		Ts:            time.Now().UTC(),
		CorrelationID: correlationID,
	}

	if result.Outcome.Block {
		reasonCode := result.Outcome.ReasonCode
		reason := result.Outcome.Reason
		blockedBy := result.BlockedBy
		rec.ReasonCode = &reasonCode
		rec.Reason = &reason
		rec.BlockedBy = &blockedBy
		rec.Diagnostics = result.Outcome.Diagnostics

		if s.auditOnly {
			rec.AuditSuppressed = true
		}
	}

	return rec
}

func (s *EvaluationService) recordMetrics(result plugin.Result, rec *decision.Record) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRequestLatency(result.LatencyMs)
	for _, t := range result.Timings {
		s.metrics.ObservePluginTiming(t.Plugin, t.Ms)
	}
	if rec.BlockAction {
		if rec.BlockedBy != nil {
			s.metrics.IncPluginBlock(*rec.BlockedBy)
		}
		if rec.AuditSuppressed {
			s.metrics.IncAuditSuppressed()
		} else {
			s.metrics.IncBlocks()
		}
	}
}

// emitTelemetry writes the decision telemetry line, plus an audit line
// when a block was suppressed outward.
func (s *EvaluationService) emitTelemetry(rec *decision.Record, req *evalctx.Request) {
	if s.sink == nil {
		return
	}
	s.recordWrite(s.sink.EmitEvent(rec))

	if rec.AuditSuppressed {
		audit := map[string]interface{}{
			"ts":        rec.Ts,
			"auditOnly": true,
			"wouldBlock": true,
			"wouldResponse": map[string]interface{}{
				"blockAction": true,
				"reasonCode":  rec.ReasonCode,
				"blockedBy":   rec.BlockedBy,
				"diagnostics": rec.Diagnostics,
			},
			"request": requestForAudit(req),
		}
		s.recordWrite(s.sink.EmitAudit(audit))
	}
}

// recordWrite updates the telemetry-lines/write-errors counters from a
// single write's outcome.
func (s *EvaluationService) recordWrite(ok bool) {
	if s.metrics == nil {
		return
	}
	if ok {
		s.metrics.IncTelemetryLines()
	} else {
		s.metrics.IncTelemetryWriteErrors()
	}
}

// requestHash computes a stable fingerprint of req's tool name, user
// message, and input values, independent of map iteration order. It lets
// the telemetry line correlate repeated evaluations of the same logical
// call without retaining the call's contents.
func requestHash(req *evalctx.Request) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(req.ToolDefinition.Name)
	_, _ = h.WriteString(req.PlannerContext.UserMessage)

	keys := make([]string, 0, len(req.InputValues))
	for k := range req.InputValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString(fmt.Sprintf("%v", req.InputValues[k]))
	}
	return h.Sum64()
}

// requestForAudit builds the audit line's request payload, preferring the
// raw decoded document (which preserves fields the typed Request drops)
// when available.
func requestForAudit(req *evalctx.Request) interface{} {
	if req.Raw != nil {
		return req.Raw
	}
	return map[string]interface{}{
		"plannerContext":       req.PlannerContext,
		"toolDefinition":       req.ToolDefinition,
		"inputValues":          req.InputValues,
		"conversationMetadata": req.ConversationMetadata,
	}
}
