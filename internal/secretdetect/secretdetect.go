// Package secretdetect finds credentials in free text so they can be kept
// out of log files.
package secretdetect

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

// Pattern is one kind of credential.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// Match locates a secret as a byte range of the scanned text.
type Match struct {
	Pattern string
	Start   int
	End     int
}

// Provider keys come first so the more specific name wins on overlap.
var patterns = []Pattern{
	{"Anthropic API Key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9_\-]{10,}`)},
	{"OpenAI Project Key", regexp.MustCompile(`sk-proj-[a-zA-Z0-9_\-]{20,}`)},
	{"OpenRouter API Key", regexp.MustCompile(`sk-or-v1-[a-f0-9]{32,}`)},
	{"OpenAI API Key", regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)},
	{"Google API Key", regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)},
	{"AWS Access Key ID", regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`)},
	{"GitHub Token", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`)},
	{"Bearer Token", regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`)},
	{"Private Key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY( BLOCK)?-----`)},
}

// Patterns returns the built-in patterns.
func Patterns() []Pattern {
	out := make([]Pattern, len(patterns))
	copy(out, patterns)
	return out
}

// Scan returns non-overlapping matches ordered by position.
func Scan(text string) []Match {
	var found []Match
	for _, p := range patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			found = append(found, Match{Pattern: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].Start < found[j].Start })

	var out []Match
	for _, m := range found {
		if n := len(out); n > 0 && m.Start < out[n-1].End {
			if m.End > out[n-1].End {
				out[n-1].End = m.End
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

// Redact replaces every secret in text with Placeholder.
func Redact(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(Placeholder)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Preview redacts text and shortens it to at most n runes for log lines.
func Preview(text string, n int) string {
	text = strings.Join(strings.Fields(Redact(text)), " ")
	if r := []rune(text); n > 0 && len(r) > n {
		return string(r[:n]) + "…"
	}
	return text
}
