package plugin

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"github.com/sentra-security/sentra/internal/adapter/outbound/cel"
	"github.com/sentra-security/sentra/internal/domain/evalctx"
)

// DefaultPolicyReasonCode is the reasonCode applied to a rule that does not
// configure its own.
const DefaultPolicyReasonCode = 700

// MaxPolicyPatterns and MaxPolicyPatternLen bound the regex complexity
// accepted per rule, mirroring the safeguards in the reference
// implementation's PolicyPackPlugin::new.
const (
	MaxPolicyPatterns  = 50
	MaxPolicyPatternLen = 500
)

// PolicyRule is a user-defined policy_pack rule as loaded from
// policyConfig.policies.
type PolicyRule struct {
	Tool       string   `json:"tool,omitempty"`
	Arg        string   `json:"arg,omitempty"`
	Contains   []string `json:"contains,omitempty"`
	Regex      []string `json:"regex,omitempty"`
	ReasonCode uint32   `json:"reasonCode,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	// Condition is an optional CEL expression evaluated against a small
	// variable set (tool, arg, argValue) in addition to the contains/regex
	// checks; it is a Sentra extension not present in the plugin this is
	// grounded on, added because the pack already carries cel-go for
	// identical rule-condition evaluation.
	Condition string `json:"condition,omitempty"`
}

type compiledRule struct {
	tool       string
	arg        string
	contains   []string
	regexes    []*regexp.Regexp
	reasonCode uint32
	reason     string
	program    celgo.Program
}

// PolicyPack evaluates user-supplied rules against the request.
type PolicyPack struct {
	rules []compiledRule
}

// NewPolicyPack compiles rules, dropping any rule whose regex list exceeds
// the configured safety limits and logging the truncation/drop, matching
// the reference implementation's safeguards.
func NewPolicyPack(rules []PolicyRule, evaluator *cel.Evaluator, logger *slog.Logger) *PolicyPack {
	if logger == nil {
		logger = slog.Default()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{
			tool:       strings.ToLower(r.Tool),
			arg:        strings.ToLower(r.Arg),
			reasonCode: r.ReasonCode,
			reason:     r.Reason,
		}
		if cr.reasonCode == 0 {
			cr.reasonCode = DefaultPolicyReasonCode
		}
		for _, c := range r.Contains {
			cr.contains = append(cr.contains, strings.ToLower(c))
		}

		patterns := r.Regex
		if len(patterns) > MaxPolicyPatterns {
			logger.Warn("policy rule regex list truncated", "count", len(patterns), "limit", MaxPolicyPatterns)
			patterns = patterns[:MaxPolicyPatterns]
		}
		for _, pat := range patterns {
			if len(pat) > MaxPolicyPatternLen {
				logger.Warn("dropping oversized policy regex pattern", "len", len(pat), "limit", MaxPolicyPatternLen)
				continue
			}
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				logger.Warn("failed to compile regex in policy pack, ignoring", "pattern", pat, "error", err)
				continue
			}
			cr.regexes = append(cr.regexes, re)
		}

		if r.Condition != "" && evaluator != nil {
			prg, err := evaluator.CompilePolicyPackCondition(r.Condition)
			if err != nil {
				logger.Warn("failed to compile policy_pack condition, ignoring condition", "error", err)
			} else {
				cr.program = prg
			}
		}

		compiled = append(compiled, cr)
	}
	return &PolicyPack{rules: compiled}
}

// Name returns "policy_pack".
func (p *PolicyPack) Name() string { return "policy_pack" }

// Evaluate checks each rule in order, returning the first match.
func (p *PolicyPack) Evaluate(ctx context.Context, ec *evalctx.EvaluationContext) Outcome {
	toolName := strings.ToLower(ec.Request.ToolDefinition.Name)
	for _, rule := range p.rules {
		if rule.tool != "" && rule.tool != toolName {
			continue
		}

		targets, argValue := p.targets(rule, ec)
		matched := false
		for _, t := range targets {
			tl := strings.ToLower(t)
			for _, c := range rule.contains {
				if strings.Contains(tl, c) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
			for _, re := range rule.regexes {
				if re.MatchString(tl) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}

		if !matched && rule.program != nil {
			matched = p.evalCondition(ctx, rule, toolName, argValue)
		}

		if matched {
			diagnostics := map[string]interface{}{
				"plugin":         "policy_pack",
				"code":           "policy",
				"ruleReasonCode": rule.reasonCode,
			}
			if rule.arg != "" {
				diagnostics["arg"] = rule.arg
				if argValue != "" {
					diagnostics["value"] = truncateDetail(argValue)
				}
			}
			reason := rule.reason
			if reason == "" {
				reason = "Policy rule triggered"
			}
			return BlockWith(rule.reasonCode, reason, diagnostics)
		}
	}
	return Allow
}

// targets returns the strings a rule should be matched against, plus the
// resolved arg value (empty if the rule is not arg-scoped or the arg is not
// a string).
func (p *PolicyPack) targets(rule compiledRule, ec *evalctx.EvaluationContext) ([]string, string) {
	if rule.arg != "" {
		val, ok := ec.Request.InputValues[rule.arg]
		if !ok {
			return nil, ""
		}
		s, ok := val.(string)
		if !ok {
			return nil, ""
		}
		return []string{s}, s
	}
	targets := []string{ec.Pre.LowercasedText}
	targets = append(targets, ec.Pre.Strings...)
	return targets, ""
}

func (p *PolicyPack) evalCondition(ctx context.Context, rule compiledRule, toolName, argValue string) bool {
	ok, err := cel.EvaluatePolicyPackCondition(ctx, rule.program, toolName, rule.arg, argValue)
	if err != nil {
		return false
	}
	return ok
}

var _ Plugin = (*PolicyPack)(nil)
