// Package render formats sessions, events and workspace files for a
// terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/codefionn/agentweb/internal/agent"
	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/catalog"
)

// DefaultWidth is used when the terminal size is unknown.
const DefaultWidth = 80

var (
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	agentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	stepStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Event renders one log entry wrapped to width.
func Event(ev agent.Event, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}

	var label, body string
	switch p := ev.Payload.(type) {
	case agent.Message:
		switch p.Role {
		case agent.EventUser:
			label = userStyle.Render("You")
		case agent.EventSystem:
			label = systemStyle.Render("System")
		default:
			label = agentStyle.Render("Agent")
		}
		body = p.Text
	case agent.Step:
		label = stepStyle.Render(StepTitle(p))
		body = p.Content
	case agent.Result:
		if p.Success {
			label = successStyle.Render("✓ Result")
		} else {
			label = errorStyle.Render("✗ Result")
		}
		body = p.Text
		if p.ExecutionTime > 0 {
			body += "\n" + mutedStyle.Render("Completed in "+Duration(p.ExecutionTime))
		}
	case agent.Failure:
		label = errorStyle.Render("Error")
		body = p.Text
	default:
		label = mutedStyle.Render(string(ev.Type))
		body = string(ev.Raw)
	}

	ts := mutedStyle.Render(ev.Timestamp.Format("15:04:05"))
	head := label + " " + ts
	if strings.TrimSpace(body) == "" {
		return head
	}
	return head + "\n" + Wrap(body, width-2, 2)
}

// StepTitle formats "Step N · state".
func StepTitle(s agent.Step) string {
	title := fmt.Sprintf("Step %d", s.Number)
	if s.State != "" {
		title += " · " + s.State
	}
	return title
}

// Wrap word-wraps text to width and indents every line by pad spaces.
func Wrap(text string, width, pad int) string {
	if width < 10 {
		width = 10
	}
	wrapped := wordwrap.String(text, width)
	if pad > 0 {
		wrapped = indent.String(wrapped, uint(pad))
	}
	return wrapped
}

// Duration formats d with at most two significant units.
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// Status renders a session status with its colour.
func Status(s agent.Status) string {
	switch s {
	case agent.StatusCompleted:
		return successStyle.Render(string(s))
	case agent.StatusFailed, agent.StatusError:
		return errorStyle.Render(string(s))
	default:
		return stepStyle.Render(string(s))
	}
}

// Summary renders the closing line of a session.
func Summary(s *agent.Session) string {
	line := fmt.Sprintf("Session %s %s · %d events", s.ID(), Status(s.Status()), s.Len())
	if err := s.Err(); err != nil {
		line += "\n" + errorStyle.Render(err.Error())
	}
	return line
}

// Validation renders a config check outcome.
func Validation(v api.Validation) string {
	if v.Valid {
		return successStyle.Render("✓ ") + v.Message
	}
	return errorStyle.Render("✗ ") + v.Message
}

// Providers lists the provider catalog with the default model marked.
func Providers(providers []catalog.Provider) string {
	var b strings.Builder
	for i, p := range providers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(headerStyle.Render(p.DisplayName))
		b.WriteString(mutedStyle.Render(" (" + p.Name + ")"))
		b.WriteByte('\n')
		for j, m := range p.Models {
			b.WriteString("  " + m)
			if j == 0 {
				b.WriteString(mutedStyle.Render(" [default]"))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
