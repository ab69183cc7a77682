// Package evalctx builds the immutable per-request evaluation context the
// pipeline hands to every plugin.
package evalctx

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sentra-security/sentra/internal/domain/matcher"
)

// PlannerContext carries the host agent's conversational framing for the
// tool call under evaluation.
type PlannerContext struct {
	UserMessage string `json:"userMessage"`

	// ChatHistory is the prior conversation turns, each a decoded JSON
	// object. Only each item's "content" string is scanned; the rest of
	// the object's shape is left opaque, mirroring the reference
	// implementation's chat_history: Option<Vec<serde_json::Value>>.
	ChatHistory []map[string]interface{} `json:"chatHistory,omitempty"`
}

// ToolDefinition identifies the tool the agent wants to invoke.
type ToolDefinition struct {
	Name string `json:"name"`
}

// Request is the validated input to the evaluation core. Unknown top-level
// fields are preserved in Raw so the external-HTTP plugin's templating can
// see them.
type Request struct {
	PlannerContext       PlannerContext          `json:"plannerContext"`
	ToolDefinition       ToolDefinition          `json:"toolDefinition"`
	InputValues          map[string]interface{} `json:"inputValues"`
	ConversationMetadata map[string]interface{} `json:"conversationMetadata,omitempty"`

	// Raw is the original decoded JSON document, retained for the
	// external-HTTP plugin's ${inputJson}-style templating and for audit
	// lines, which must carry the full original request.
	Raw map[string]interface{} `json:"-"`
}

// Matchers bundles the process-wide, read-only matcher singletons handed by
// reference to every plugin through the evaluation context.
type Matchers struct {
	Exfil        *matcher.PhraseMatcher
	Secrets      *matcher.SecretsMatcher
	PII          *matcher.PIIMatcher
	DomainBlock  *matcher.DomainTokenizer
}

// Precomputed holds the text derived once per request and reused by every
// text-scanning plugin, mirroring util::Precomputed in the reference
// implementation this package is grounded on.
type Precomputed struct {
	// LowercasedText concatenates the user message, chat history content,
	// tool name, and stringified input values, folded to lowercase.
	LowercasedText string
	// Strings is the flattened list of string leaves found in InputValues,
	// used by plugins that need to test individual fields rather than the
	// concatenated blob (e.g. email_bcc, policy_pack).
	Strings []string
}

// EvaluationContext is the immutable per-request bundle passed to every
// plugin's Evaluate method. It is constructed once by New and never
// mutated afterward.
type EvaluationContext struct {
	Request       *Request
	Pre           Precomputed
	CorrelationID string
	Matchers      *Matchers
	Deadline      time.Time
	start         time.Time
}

// New builds an EvaluationContext for req. budget is the configured
// pluginBudgetMs, used to derive the soft deadline surfaced to cooperating
// plugins; it is never used to forcibly cancel a running plugin.
func New(req *Request, correlationID string, budget time.Duration, matchers *Matchers) *EvaluationContext {
	now := time.Now()
	return &EvaluationContext{
		Request:       req,
		Pre:           precompute(req),
		CorrelationID: correlationID,
		Matchers:      matchers,
		Deadline:      now.Add(budget),
		start:         now,
	}
}

// Exceeded reports whether the soft deadline has already passed.
func (c *EvaluationContext) Exceeded() bool {
	return time.Now().After(c.Deadline)
}

// Elapsed returns the time spent since the context was constructed.
func (c *EvaluationContext) Elapsed() time.Duration {
	return time.Since(c.start)
}

// precompute assembles the Precomputed block for req.
func precompute(req *Request) Precomputed {
	var sb strings.Builder
	sb.WriteString(req.PlannerContext.UserMessage)
	sb.WriteByte(' ')
	for _, turn := range req.PlannerContext.ChatHistory {
		content, ok := turn["content"].(string)
		if !ok {
			continue
		}
		sb.WriteString(content)
		sb.WriteByte(' ')
	}
	sb.WriteString(req.ToolDefinition.Name)

	var strs []string
	for _, v := range req.InputValues {
		appendStringLeaves(v, &sb, &strs)
	}

	return Precomputed{
		LowercasedText: strings.ToLower(sb.String()),
		Strings:        strs,
	}
}

// appendStringLeaves walks an arbitrary decoded-JSON value, writing every
// string leaf into sb (space-separated) and strs.
func appendStringLeaves(v interface{}, sb *strings.Builder, strs *[]string) {
	switch val := v.(type) {
	case string:
		sb.WriteByte(' ')
		sb.WriteString(val)
		*strs = append(*strs, val)
	case map[string]interface{}:
		for _, child := range val {
			appendStringLeaves(child, sb, strs)
		}
	case []interface{}:
		for _, child := range val {
			appendStringLeaves(child, sb, strs)
		}
	case json.Number:
		sb.WriteByte(' ')
		sb.WriteString(val.String())
	}
}
