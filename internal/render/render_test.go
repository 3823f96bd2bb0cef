package render

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"github.com/codefionn/agentweb/internal/agent"
	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/catalog"
)

// plain strips styling so assertions do not depend on the colour profile.
func plain(s string) string {
	return ansi.Strip(s)
}

func TestEventStep(t *testing.T) {
	ev := agent.Event{
		Type:      agent.EventStep,
		Timestamp: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		Payload:   agent.Step{Number: 3, State: "acting", Content: "running tests"},
	}
	out := plain(Event(ev, 80))
	assert.Contains(t, out, "Step 3 · acting")
	assert.Contains(t, out, "15:04:05")
	assert.Contains(t, out, "  running tests")
}

func TestEventResultFooter(t *testing.T) {
	ev := agent.Event{
		Type:    agent.EventResult,
		Payload: agent.Result{Text: "All done", Success: true, ExecutionTime: 1500 * time.Millisecond},
	}
	out := plain(Event(ev, 80))
	assert.Contains(t, out, "✓ Result")
	assert.Contains(t, out, "Completed in 1.5s")

	failed := plain(Event(agent.Event{Payload: agent.Result{Text: "nope"}}, 80))
	assert.Contains(t, failed, "✗ Result")
}

func TestEventWrapsLongText(t *testing.T) {
	text := strings.Repeat("word ", 40)
	out := Event(agent.Event{Payload: agent.Message{Role: agent.EventAgent, Text: text}}, 30)
	for _, line := range strings.Split(out, "\n")[1:] {
		assert.LessOrEqual(t, lipgloss.Width(line), 30)
	}
}

func TestStepTitleWithoutState(t *testing.T) {
	assert.Equal(t, "Step 1", StepTitle(agent.Step{Number: 1}))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "250ms", Duration(250*time.Millisecond))
	assert.Equal(t, "2.5s", Duration(2500*time.Millisecond))
	assert.Equal(t, "1m30s", Duration(90*time.Second))
}

func TestProvidersMarksDefault(t *testing.T) {
	out := plain(Providers(catalog.Providers()))
	assert.Contains(t, out, "Anthropic (anthropic)")
	assert.Contains(t, out, catalog.DefaultModel("openai")+" [default]")
	assert.Equal(t, len(catalog.Providers()), strings.Count(out, "[default]"))
}

func TestValidation(t *testing.T) {
	assert.Contains(t, plain(Validation(api.Validation{Valid: false, Message: "API key is required"})), "✗ API key is required")
	assert.Contains(t, plain(Validation(api.Validation{Valid: true, Message: "ok"})), "✓ ok")
}
