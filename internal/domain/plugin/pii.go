package plugin

import (
	"context"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// PIIReasonCode is the default reasonCode for the pii plugin.
const PIIReasonCode = 202

// PII blocks requests containing a non-company email address, an
// international phone number, an IBAN, or a configured keyword.
type PII struct{}

// NewPII constructs the pii plugin.
func NewPII() *PII { return &PII{} }

// Name returns "pii".
func (p *PII) Name() string { return "pii" }

// Evaluate checks the precomputed lowercased text against the shared PII
// matcher.
func (p *PII) Evaluate(_ context.Context, ec *evalctx.EvaluationContext) Outcome {
	if ec.Matchers == nil || ec.Matchers.PII == nil {
		return Allow
	}
	finding, found := ec.Matchers.PII.Find(ec.Pre.LowercasedText)
	if !found {
		return Allow
	}
	return BlockWith(PIIReasonCode, "Detected personally identifiable information", map[string]interface{}{
		"plugin": "pii",
		"code":   finding.Code,
		"detail": truncateDetail(finding.Detail),
	})
}

var _ Plugin = (*PII)(nil)
