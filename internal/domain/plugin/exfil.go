package plugin

import (
	"context"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// ExfilReasonCode is the default reasonCode for the exfil plugin.
const ExfilReasonCode = 111

// Exfil blocks requests whose lowercased scannable text contains any of a
// fixed phrase set associated with prompt-injection or data-exfiltration
// attempts (e.g. "ignore previous instructions", "exfiltrate").
type Exfil struct{}

// NewExfil constructs the exfil plugin. It carries no per-instance state;
// the phrase matcher lives on the shared evaluation-context matchers.
func NewExfil() *Exfil { return &Exfil{} }

// Name returns "exfil".
func (p *Exfil) Name() string { return "exfil" }

// Evaluate blocks if the shared exfil phrase matcher finds a hit in the
// precomputed lowercased text.
func (p *Exfil) Evaluate(_ context.Context, ec *evalctx.EvaluationContext) Outcome {
	if ec.Matchers == nil || ec.Matchers.Exfil == nil {
		return Allow
	}
	phrase, found := ec.Matchers.Exfil.MatchString(ec.Pre.LowercasedText)
	if !found {
		return Allow
	}
	return BlockWith(ExfilReasonCode, "Potential prompt injection or exfiltration attempt detected", map[string]interface{}{
		"plugin": "exfil",
		"code":   "pattern",
		"detail": truncateDetail(phrase),
	})
}

var _ Plugin = (*Exfil)(nil)
