package plugin

import (
	"context"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
	"github.com/sentra-security/sentra/internal/domain/matcher"
)

// SecretsReasonCode is the default reasonCode for the secrets plugin.
const SecretsReasonCode = 201

// Secrets blocks requests whose user message or any input value contains
// an AWS-style access key identifier.
type Secrets struct{}

// NewSecrets constructs the secrets plugin.
func NewSecrets() *Secrets { return &Secrets{} }

// Name returns "secrets".
func (p *Secrets) Name() string { return "secrets" }

// Evaluate scans the message and every string input value for an
// AWS-style access key, stopping at the first hit.
func (p *Secrets) Evaluate(_ context.Context, ec *evalctx.EvaluationContext) Outcome {
	if ec.Matchers == nil || ec.Matchers.Secrets == nil {
		return Allow
	}
	if key, found := ec.Matchers.Secrets.FindString(ec.Request.PlannerContext.UserMessage); found {
		return secretsBlock(key)
	}
	for _, s := range ec.Pre.Strings {
		if key, found := ec.Matchers.Secrets.FindString(s); found {
			return secretsBlock(key)
		}
	}
	return Allow
}

func secretsBlock(key string) Outcome {
	return BlockWith(SecretsReasonCode, "Detected AWS access key", map[string]interface{}{
		"plugin": "secrets",
		"code":   "aws_key",
		"detail": matcher.MaskSecret(key),
	})
}

var _ Plugin = (*Secrets)(nil)
