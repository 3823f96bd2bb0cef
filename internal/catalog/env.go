package catalog

import (
	"os"
	"strings"
)

// providerEnvVars maps provider names to the environment variables that can
// supply their API keys, in lookup order.
var providerEnvVars = map[string][]string{
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENAI_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

func canonicalProviderName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "googleai", "gemini":
		return "google"
	default:
		return n
	}
}

// ResolveAPIKey returns explicit when non-blank, otherwise the first non-empty
// provider environment variable. Empty means no key is available.
func ResolveAPIKey(provider, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	for _, envVar := range providerEnvVars[canonicalProviderName(provider)] {
		if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
			return value
		}
	}
	return ""
}

// EnvVarHints lists the environment variables consulted for provider.
func EnvVarHints(provider string) []string {
	hints := providerEnvVars[canonicalProviderName(provider)]
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}
