package plugin

import (
	"testing"

	"github.com/sentra-security/sentra/internal/config"
)

func TestBuild_WiresBuiltinsAndExternal(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Plugins: []string{"exfil", "secrets", "policy_pack", "external_audit"},
		Policy: config.PolicyConfig{
			CompanyDomain: "acme.com",
			ExternalHTTP: []config.ExternalPluginConfig{
				{Name: "external_audit", URL: "https://policy.example.com/check"},
			},
		},
	}
	cfg.SetDefaults()

	result, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(result.Plugins) != 4 {
		t.Fatalf("len(Plugins) = %d, want 4", len(result.Plugins))
	}
	if result.Plugins[3].Name() != "external_audit" {
		t.Errorf("Plugins[3].Name() = %q, want %q", result.Plugins[3].Name(), "external_audit")
	}
	if result.Matchers.Exfil == nil || result.Matchers.Secrets == nil {
		t.Error("Build() did not populate the shared matchers")
	}
}

func TestBuild_UnknownPluginNameErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Plugins: []string{"not_a_real_plugin"}}
	cfg.SetDefaults()

	if _, err := Build(cfg, nil); err == nil {
		t.Fatal("Build() = nil error, want an error for an unresolvable plugin name")
	}
}
