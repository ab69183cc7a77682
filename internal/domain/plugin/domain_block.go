package plugin

import (
	"context"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// DomainBlockReasonCode is the default reasonCode for the domain_block plugin.
const DomainBlockReasonCode = 113

// DomainBlock blocks requests whose lowercased text or any string input
// value contains a configured domain as a token-bounded match.
type DomainBlock struct{}

// NewDomainBlock constructs the domain_block plugin.
func NewDomainBlock() *DomainBlock { return &DomainBlock{} }

// Name returns "domain_block".
func (p *DomainBlock) Name() string { return "domain_block" }

// Evaluate checks the precomputed lowercased text, then each individual
// input string, against the shared domain tokenizer.
func (p *DomainBlock) Evaluate(_ context.Context, ec *evalctx.EvaluationContext) Outcome {
	if ec.Matchers == nil || ec.Matchers.DomainBlock == nil {
		return Allow
	}
	if domain, found := ec.Matchers.DomainBlock.FindIn(ec.Pre.LowercasedText); found {
		return domainBlock(domain)
	}
	for _, s := range ec.Pre.Strings {
		if domain, found := ec.Matchers.DomainBlock.FindIn(s); found {
			return domainBlock(domain)
		}
	}
	return Allow
}

func domainBlock(domain string) Outcome {
	return BlockWith(DomainBlockReasonCode, "Blocked domain referenced in request", map[string]interface{}{
		"plugin": "domain_block",
		"code":   "domain",
		"detail": truncateDetail(domain),
	})
}

var _ Plugin = (*DomainBlock)(nil)
