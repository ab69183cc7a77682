// Package config provides the configuration schema for Sentra: the
// server listener, the ordered plugin list, the strict-auth token
// allowlist, per-request budgets, the policy_pack/PII/domain-blocklist
// configuration, and the telemetry sink settings.
package config

// Config is the top-level configuration record.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Plugins is the ordered list of built-in plugin names to run, plus
	// "external_<name>" entries referencing PolicyConfig.ExternalHTTP
	// definitions. Order determines evaluation order and therefore which
	// plugin wins when more than one would block.
	Plugins []string `yaml:"plugins" mapstructure:"plugins" validate:"required,min=1,dive,required"`

	// StrictAuthAllowedTokens is the static bearer-token allowlist checked
	// by the strict-auth middleware. Empty disables auth entirely.
	StrictAuthAllowedTokens []string `yaml:"strict_auth_allowed_tokens" mapstructure:"strict_auth_allowed_tokens"`

	// MaxRequestBytes bounds the request body size accepted by /validate
	// and /analyze-tool-execution. Defaults to 1MiB.
	MaxRequestBytes int64 `yaml:"max_request_bytes" mapstructure:"max_request_bytes" validate:"omitempty,min=1"`

	// PluginBudgetMs is the soft per-request deadline handed to the
	// evaluation context. It never cancels a running plugin; it only flags
	// the record as warnExceeded for telemetry.
	PluginBudgetMs int `yaml:"plugin_budget_ms" mapstructure:"plugin_budget_ms" validate:"omitempty,min=1"`

	// PluginWarnMs is the per-plugin threshold above which the pipeline
	// logs a warning (but still lets the plugin finish).
	PluginWarnMs int `yaml:"plugin_warn_ms" mapstructure:"plugin_warn_ms" validate:"omitempty,min=1"`

	// AuditOnly suppresses outward block responses: a blocking decision
	// is still recorded and audited, but /analyze-tool-execution reports
	// an allow.
	AuditOnly bool `yaml:"audit_only" mapstructure:"audit_only"`

	// Policy configures the policy_pack, PII keyword list, domain
	// blocklist, company domain, and external-HTTP plugin definitions.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Telemetry configures the append-only decision/audit log.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// PolicyConfig configures the policy_pack, PII, domain-blocklist, and
// external-HTTP building blocks.
type PolicyConfig struct {
	// Policies are the policy_pack rules, evaluated in order.
	Policies []PolicyRuleConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// PIIKeywords augments the fixed email/phone/IBAN PII detectors with
	// additional free-text keywords (e.g. "social security number").
	PIIKeywords []string `yaml:"pii_keywords" mapstructure:"pii_keywords"`

	// DomainBlocklist is the set of domain tokens the domain_block plugin
	// looks for, boundary-checked against scannable text.
	DomainBlocklist []string `yaml:"domain_blocklist" mapstructure:"domain_blocklist"`

	// CompanyDomain is the trusted email domain; addresses on this domain
	// never trip pii or email_bcc.
	CompanyDomain string `yaml:"company_domain" mapstructure:"company_domain"`

	// MailTools overrides the default tool-name set the email_bcc plugin
	// inspects. Empty uses the built-in defaults.
	MailTools []string `yaml:"mail_tools" mapstructure:"mail_tools"`

	// ExternalHTTP defines the remote policy-service plugins referenced by
	// Plugins entries named "external_<Name>".
	ExternalHTTP []ExternalPluginConfig `yaml:"external_http" mapstructure:"external_http" validate:"omitempty,dive"`
}

// PolicyRuleConfig is one policy_pack rule.
type PolicyRuleConfig struct {
	Tool       string   `yaml:"tool" mapstructure:"tool"`
	Arg        string   `yaml:"arg" mapstructure:"arg"`
	Contains   []string `yaml:"contains" mapstructure:"contains"`
	Regex      []string `yaml:"regex" mapstructure:"regex"`
	ReasonCode uint32   `yaml:"reason_code" mapstructure:"reason_code"`
	Reason     string   `yaml:"reason" mapstructure:"reason"`
	Condition  string   `yaml:"condition" mapstructure:"condition"`
}

// ExternalPluginConfig is one remote policy-service plugin definition.
type ExternalPluginConfig struct {
	Name                  string `yaml:"name" mapstructure:"name" validate:"required,startswith=external_"`
	URL                   string `yaml:"url" mapstructure:"url" validate:"required,url"`
	Method                string `yaml:"method" mapstructure:"method" validate:"omitempty,oneof=GET POST PUT"`
	TimeoutMs             int    `yaml:"timeout_ms" mapstructure:"timeout_ms" validate:"omitempty,min=1"`
	BearerToken           string `yaml:"bearer_token" mapstructure:"bearer_token"`
	RequestTemplate       string `yaml:"request_template" mapstructure:"request_template"`
	BlockField            string `yaml:"block_field" mapstructure:"block_field"`
	NonEmptyPointerBlocks bool   `yaml:"non_empty_pointer_blocks" mapstructure:"non_empty_pointer_blocks"`
	ReasonCode            uint32 `yaml:"reason_code" mapstructure:"reason_code"`
	Reason                string `yaml:"reason" mapstructure:"reason"`
	FailOpen              bool   `yaml:"fail_open" mapstructure:"fail_open"`
}

// TelemetryConfig configures the append-only decision/audit log.
type TelemetryConfig struct {
	// FilePath is the decision telemetry file. Empty disables file
	// persistence (stdout mirroring, if enabled, still applies).
	FilePath string `yaml:"file_path" mapstructure:"file_path"`

	// AuditFilePath is the audit-only log file. Empty falls back to
	// FilePath for audit lines.
	AuditFilePath string `yaml:"audit_file_path" mapstructure:"audit_file_path"`

	// MirrorStdout mirrors a sampled subset of lines to stdout.
	MirrorStdout bool `yaml:"mirror_stdout" mapstructure:"mirror_stdout"`

	// SampleEveryN mirrors every Nth line to stdout. Defaults to 1 (every
	// line) when MirrorStdout is true and this is unset.
	SampleEveryN uint64 `yaml:"sample_every_n" mapstructure:"sample_every_n" validate:"omitempty,min=1"`

	// MaxBytes is the rotation threshold. Defaults to 10MiB.
	MaxBytes int64 `yaml:"max_bytes" mapstructure:"max_bytes" validate:"omitempty,min=1"`

	// RotateKeep is how many numbered backups to retain.
	RotateKeep int `yaml:"rotate_keep" mapstructure:"rotate_keep" validate:"omitempty,min=0"`

	// RotateCompress gzips the freshest rotated backup.
	RotateCompress bool `yaml:"rotate_compress" mapstructure:"rotate_compress"`
}

// SetDefaults fills in sensible defaults for unset optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = 1 << 20
	}
	if c.PluginBudgetMs == 0 {
		c.PluginBudgetMs = 900
	}
	if c.PluginWarnMs == 0 {
		c.PluginWarnMs = 120
	}
	if c.Telemetry.MaxBytes == 0 {
		c.Telemetry.MaxBytes = 10 << 20
	}
	if c.Telemetry.RotateKeep == 0 {
		c.Telemetry.RotateKeep = 1
	}
	if c.Telemetry.SampleEveryN == 0 {
		c.Telemetry.SampleEveryN = 1
	}
}
