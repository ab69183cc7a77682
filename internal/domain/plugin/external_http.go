package plugin

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
	"github.com/sentra-security/sentra/internal/domain/matcher"
)

// maxExternalResponseBody bounds how much of a remote policy service's
// response body is read, preventing an unbounded response from exhausting
// memory.
const maxExternalResponseBody = 4 << 20 // 4MB

// ExternalDefinition is a single configured external-HTTP plugin instance,
// matching the ExternalPluginDefinition record in the configuration
// contract.
type ExternalDefinition struct {
	Name                  string
	URL                   string
	Method                string
	TimeoutMs             int
	BearerToken           string
	RequestTemplate       string
	BlockField            string
	NonEmptyPointerBlocks bool
	ReasonCode            uint32
	Reason                string
	FailOpen              bool
}

// ExternalHTTP templates a JSON POST to a remote policy service and
// interprets the response per the configured BlockField semantics. It is
// the only built-in-style plugin with I/O and therefore the only one with
// real failure semantics (network, timeout, parse, read).
type ExternalHTTP struct {
	def    ExternalDefinition
	client *http.Client
}

// NewExternalHTTP builds an ExternalHTTP plugin for def. The HTTP client
// uses a minimum TLS version and bounded idle connections, mirroring the
// teacher's outbound HTTP client construction.
func NewExternalHTTP(def ExternalDefinition) *ExternalHTTP {
	if def.Method == "" {
		def.Method = http.MethodPost
	}
	if def.TimeoutMs <= 0 {
		def.TimeoutMs = 500
	}
	if def.ReasonCode == 0 {
		def.ReasonCode = 801
	}
	return &ExternalHTTP{
		def: def,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the configured definition name (e.g. "external_presidio").
func (p *ExternalHTTP) Name() string { return p.def.Name }

// Evaluate renders the request template, dispatches it with the
// definition's timeout bounding the entire operation, and interprets the
// response per BlockField.
func (p *ExternalHTTP) Evaluate(ctx context.Context, ec *evalctx.EvaluationContext) Outcome {
	body := p.renderBody(ec)

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(p.def.TimeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, p.def.Method, p.def.URL, strings.NewReader(body))
	if err != nil {
		return p.errorOutcome("network_error")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.def.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.def.BearerToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return p.errorOutcome("timeout")
		}
		return p.errorOutcome("network_error")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExternalResponseBody))
	if err != nil {
		return p.errorOutcome("read_error")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.errorOutcome("parse_error")
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return p.errorOutcome("parse_error")
	}

	if p.shouldBlock(doc) {
		return BlockWith(p.def.ReasonCode, p.reasonOrDefault(), map[string]interface{}{
			"plugin": "external_http",
			"code":   "block",
			"status": resp.StatusCode,
		})
	}
	return Allow
}

func (p *ExternalHTTP) reasonOrDefault() string {
	if p.def.Reason != "" {
		return p.def.Reason
	}
	return "External policy service returned a block decision"
}

// shouldBlock interprets doc per the definition's BlockField semantics.
func (p *ExternalHTTP) shouldBlock(doc interface{}) bool {
	switch p.def.BlockField {
	case "block":
		obj, ok := doc.(map[string]interface{})
		if !ok {
			return false
		}
		b, _ := obj["block"].(bool)
		return b
	case "allow":
		obj, ok := doc.(map[string]interface{})
		if !ok {
			return false
		}
		a, ok := obj["allow"].(bool)
		if !ok {
			return false
		}
		return !a
	default:
		target, ok := matcher.ResolvePointer(doc, p.def.BlockField)
		if !ok {
			return false
		}
		if b, ok := target.(bool); ok {
			return b
		}
		if !p.def.NonEmptyPointerBlocks {
			return false
		}
		switch v := target.(type) {
		case []interface{}:
			return len(v) > 0
		case map[string]interface{}:
			return len(v) > 0
		default:
			return false
		}
	}
}

// errorOutcome applies the configured fail-open/fail-closed policy.
func (p *ExternalHTTP) errorOutcome(code string) Outcome {
	if p.def.FailOpen {
		return Allow
	}
	return BlockWith(p.def.ReasonCode, p.reasonOrDefault(), map[string]interface{}{
		"plugin": "external_http",
		"code":   code,
	})
}

// renderBody substitutes the fixed placeholder set into RequestTemplate.
// ${inputJson} and the plain placeholders inject raw, JSON-legal text; the
// *Json variants are guaranteed correctly escaped JSON string literals.
// ${inputJson} is rendered as compact JSON, matching the reference
// implementation's serde_json::Value::to_string() default (this resolves
// the template-formatting ambiguity the distilled specification flagged as
// an open question).
func (p *ExternalHTTP) renderBody(ec *evalctx.EvaluationContext) string {
	inputJSON, _ := json.Marshal(ec.Request.InputValues)

	out := p.def.RequestTemplate
	out = strings.ReplaceAll(out, "${userMessage}", ec.Request.PlannerContext.UserMessage)
	out = strings.ReplaceAll(out, "${toolName}", ec.Request.ToolDefinition.Name)
	out = strings.ReplaceAll(out, "${inputJson}", string(inputJSON))
	out = strings.ReplaceAll(out, "${userMessageJson}", jsonStringLiteral(ec.Request.PlannerContext.UserMessage))
	out = strings.ReplaceAll(out, "${toolNameJson}", jsonStringLiteral(ec.Request.ToolDefinition.Name))
	return out
}

// jsonStringLiteral renders s as a correctly escaped JSON string literal,
// including the surrounding quotes.
func jsonStringLiteral(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return string(b)
}

var _ Plugin = (*ExternalHTTP)(nil)
