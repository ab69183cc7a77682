package plugin

import (
	"context"
	"strings"

	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// EmailBCCReasonCode is the default reasonCode for the email_bcc plugin.
const EmailBCCReasonCode = 112

// DefaultMailTools lists the tool names the email_bcc plugin inspects when
// no override is configured.
func DefaultMailTools() []string {
	return []string{"sendemail", "send_email", "sendmail", "composeemail"}
}

// EmailBCC blocks mail-tool invocations whose inputValues.bcc contains at
// least one address outside the configured company domain. bcc may be a
// single string or a JSON array of strings; the reference implementation
// this is grounded on only handled the single-string case, generalized
// here per the diagnostics table's "at least one bcc address" wording.
type EmailBCC struct {
	mailTools     map[string]struct{}
	companyDomain string
}

// NewEmailBCC constructs the email_bcc plugin scoped to mailTools (tool
// names, matched case-insensitively) and companyDomain.
func NewEmailBCC(mailTools []string, companyDomain string) *EmailBCC {
	set := make(map[string]struct{}, len(mailTools))
	for _, t := range mailTools {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &EmailBCC{
		mailTools:     set,
		companyDomain: strings.ToLower(strings.TrimSpace(companyDomain)),
	}
}

// Name returns "email_bcc".
func (p *EmailBCC) Name() string { return "email_bcc" }

// Evaluate blocks when the tool is a configured mail tool and any bcc
// address does not end with "@<companyDomain>".
func (p *EmailBCC) Evaluate(_ context.Context, ec *evalctx.EvaluationContext) Outcome {
	toolName := strings.ToLower(ec.Request.ToolDefinition.Name)
	if _, ok := p.mailTools[toolName]; !ok {
		return Allow
	}

	raw, ok := ec.Request.InputValues["bcc"]
	if !ok {
		return Allow
	}

	for _, addr := range bccAddresses(raw) {
		if !p.isCompanyAddress(addr) {
			return BlockWith(EmailBCCReasonCode, "Email BCC recipient outside company domain", map[string]interface{}{
				"plugin": "email_bcc",
				"code":   "bcc_external",
				"detail": truncateDetail(addr),
			})
		}
	}
	return Allow
}

// bccAddresses normalizes the bcc field, which may be a single string or an
// array of strings, into a flat list.
func bccAddresses(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (p *EmailBCC) isCompanyAddress(addr string) bool {
	if p.companyDomain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(addr), "@"+p.companyDomain)
}

var _ Plugin = (*EmailBCC)(nil)
