package plugin

import (
	"fmt"
	"log/slog"

	"github.com/sentra-security/sentra/internal/adapter/outbound/cel"
	"github.com/sentra-security/sentra/internal/config"
	"github.com/sentra-security/sentra/internal/domain/evalctx"
	"github.com/sentra-security/sentra/internal/domain/matcher"
)

// BuildResult bundles the constructed pipeline inputs: the ordered plugin
// list and the shared matcher handles every text-scanning plugin draws
// from the evaluation context.
type BuildResult struct {
	Plugins  []Plugin
	Matchers *evalctx.Matchers
}

// Build constructs the ordered plugin list named by cfg.Plugins, wiring
// each built-in to its slice of cfg.Policy and each "external_*" entry to
// its matching cfg.Policy.ExternalHTTP definition. Config validation
// already guarantees every name resolves; Build returns an error only if
// that invariant was somehow violated (e.g. programmatic construction
// bypassing Config.Validate).
func Build(cfg *config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	matchers := &evalctx.Matchers{
		Exfil:       matcher.NewPhraseMatcher(matcher.DefaultExfilPhrases()),
		Secrets:     matcher.NewSecretsMatcher(),
		PII:         matcher.NewPIIMatcher(cfg.Policy.CompanyDomain, cfg.Policy.PIIKeywords),
		DomainBlock: matcher.NewDomainTokenizer(cfg.Policy.DomainBlocklist),
	}

	celEvaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("build policy_pack CEL evaluator: %w", err)
	}

	external := make(map[string]config.ExternalPluginConfig, len(cfg.Policy.ExternalHTTP))
	for _, def := range cfg.Policy.ExternalHTTP {
		external[def.Name] = def
	}

	mailTools := cfg.Policy.MailTools
	if len(mailTools) == 0 {
		mailTools = DefaultMailTools()
	}

	policyRules := make([]PolicyRule, 0, len(cfg.Policy.Policies))
	for _, r := range cfg.Policy.Policies {
		policyRules = append(policyRules, PolicyRule{
			Tool:       r.Tool,
			Arg:        r.Arg,
			Contains:   r.Contains,
			Regex:      r.Regex,
			ReasonCode: r.ReasonCode,
			Reason:     r.Reason,
			Condition:  r.Condition,
		})
	}

	plugins := make([]Plugin, 0, len(cfg.Plugins))
	for _, name := range cfg.Plugins {
		switch name {
		case "exfil":
			plugins = append(plugins, NewExfil())
		case "secrets":
			plugins = append(plugins, NewSecrets())
		case "pii":
			plugins = append(plugins, NewPII())
		case "email_bcc":
			plugins = append(plugins, NewEmailBCC(mailTools, cfg.Policy.CompanyDomain))
		case "domain_block":
			plugins = append(plugins, NewDomainBlock())
		case "policy_pack":
			plugins = append(plugins, NewPolicyPack(policyRules, celEvaluator, logger))
		default:
			def, ok := external[name]
			if !ok {
				return nil, fmt.Errorf("plugin %q is neither a built-in nor a configured external_http definition", name)
			}
			plugins = append(plugins, NewExternalHTTP(ExternalDefinition{
				Name:                  def.Name,
				URL:                   def.URL,
				Method:                def.Method,
				TimeoutMs:             def.TimeoutMs,
				BearerToken:           def.BearerToken,
				RequestTemplate:       def.RequestTemplate,
				BlockField:            def.BlockField,
				NonEmptyPointerBlocks: def.NonEmptyPointerBlocks,
				ReasonCode:            def.ReasonCode,
				Reason:                def.Reason,
				FailOpen:              def.FailOpen,
			}))
		}
	}

	return &BuildResult{Plugins: plugins, Matchers: matchers}, nil
}
