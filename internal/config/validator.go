package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// builtinPluginNames is the fixed set of built-in plugin names the
// plugin registry knows how to construct. Any Plugins entry that is not
// in this set must instead name a configured external-HTTP definition
// (i.e. start with "external_").
var builtinPluginNames = map[string]struct{}{
	"exfil":        {},
	"secrets":      {},
	"pii":          {},
	"email_bcc":    {},
	"domain_block": {},
	"policy_pack":  {},
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validatePluginNames(); err != nil {
		return err
	}
	if err := c.validateExternalDefinitions(); err != nil {
		return err
	}

	return nil
}

// validatePluginNames ensures every Plugins entry is either a known
// built-in or names a configured external-HTTP definition, and that no
// name appears twice — a duplicate would make pipeline attribution
// ambiguous.
func (c *Config) validatePluginNames() error {
	external := make(map[string]struct{}, len(c.Policy.ExternalHTTP))
	for _, def := range c.Policy.ExternalHTTP {
		external[def.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(c.Plugins))
	for _, name := range c.Plugins {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("plugins: duplicate plugin name %q", name)
		}
		seen[name] = struct{}{}

		if _, ok := builtinPluginNames[name]; ok {
			continue
		}
		if _, ok := external[name]; ok {
			continue
		}
		return fmt.Errorf("plugins: %q is not a built-in plugin and has no matching policy.external_http definition", name)
	}
	return nil
}

// validateExternalDefinitions ensures external-HTTP definitions have
// unique, correctly prefixed names.
func (c *Config) validateExternalDefinitions() error {
	seen := make(map[string]struct{}, len(c.Policy.ExternalHTTP))
	for i, def := range c.Policy.ExternalHTTP {
		if !strings.HasPrefix(def.Name, "external_") {
			return fmt.Errorf("policy.external_http[%d]: name %q must start with \"external_\"", i, def.Name)
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("policy.external_http[%d]: duplicate name %q", i, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly, joined messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items/value", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
