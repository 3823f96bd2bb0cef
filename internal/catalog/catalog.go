// Package catalog holds the fixed table of supported LLM providers and their
// models, plus the bounds on agent step counts.
package catalog

import (
	"fmt"
	"strings"
)

const (
	// MinSteps is the smallest accepted max-steps value.
	MinSteps = 1
	// MaxSteps is the largest accepted max-steps value.
	MaxSteps = 100
	// DefaultMaxSteps is used when no value is configured.
	DefaultMaxSteps = 20
)

// Provider describes one selectable provider. Models[0] is the default.
type Provider struct {
	Name        string
	DisplayName string
	Models      []string
}

var providers = []Provider{
	{
		Name:        "anthropic",
		DisplayName: "Anthropic",
		Models: []string{
			"claude-sonnet-4-20250514",
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
		},
	},
	{
		Name:        "openai",
		DisplayName: "OpenAI",
		Models: []string{
			"gpt-4o",
			"gpt-4o-mini",
			"gpt-4-turbo",
			"o1-preview",
			"o1-mini",
		},
	},
	{
		Name:        "google",
		DisplayName: "Google",
		Models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-pro",
			"gemini-1.5-pro",
		},
	},
	{
		Name:        "openrouter",
		DisplayName: "OpenRouter",
		Models: []string{
			"openai/gpt-4o",
			"anthropic/claude-3-5-sonnet",
			"google/gemini-pro",
		},
	},
}

// DefaultProvider is preselected when nothing is configured.
const DefaultProvider = "anthropic"

// Providers returns a copy of the provider table in display order.
func Providers() []Provider {
	out := make([]Provider, len(providers))
	for i, p := range providers {
		p.Models = append([]string(nil), p.Models...)
		out[i] = p
	}
	return out
}

// Lookup finds a provider by name (case-insensitive).
func Lookup(name string) (Provider, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range providers {
		if p.Name == name {
			p.Models = append([]string(nil), p.Models...)
			return p, true
		}
	}
	return Provider{}, false
}

// DefaultModel returns the first model of the provider, or "" if unknown.
func DefaultModel(provider string) string {
	p, ok := Lookup(provider)
	if !ok || len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

// IsKnown reports whether model belongs to provider.
func IsKnown(provider, model string) bool {
	return CheckModel(provider, model) == nil
}

// CheckModel explains why a provider/model pairing is rejected.
func CheckModel(provider, model string) error {
	p, ok := Lookup(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	for _, m := range p.Models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available for provider %s", model, p.DisplayName)
}

// CheckSteps validates a max-steps value against [MinSteps, MaxSteps].
func CheckSteps(n int) error {
	if n < MinSteps || n > MaxSteps {
		return fmt.Errorf("max steps must be between %d and %d, got %d", MinSteps, MaxSteps, n)
	}
	return nil
}
