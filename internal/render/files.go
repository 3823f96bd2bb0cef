package render

import (
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/codefionn/agentweb/internal/api"
)

// FileTable renders a workspace listing. Times are relative to now.
func FileTable(files []api.FileItem, now time.Time) string {
	if len(files) == 0 {
		return mutedStyle.Render("No files in workspace")
	}

	nameWidth := len("NAME")
	for _, f := range files {
		if n := lipgloss.Width(f.Path); n > nameWidth {
			nameWidth = n
		}
	}
	nameCol := lipgloss.NewStyle().Width(nameWidth + 2)
	sizeCol := lipgloss.NewStyle().Width(10).Align(lipgloss.Right).MarginRight(2)

	var b strings.Builder
	b.WriteString(headerStyle.Render(nameCol.Render("NAME") + sizeCol.Render("SIZE") + "MODIFIED"))
	b.WriteByte('\n')
	for _, f := range files {
		b.WriteString(nameCol.Render(f.Path))
		b.WriteString(sizeCol.Render(humanize.IBytes(uint64(max(f.Size, 0)))))
		b.WriteString(mutedStyle.Render(humanize.RelTime(f.ModTime(), now, "ago", "from now")))
		b.WriteByte('\n')
	}
	b.WriteString(mutedStyle.Render(humanize.Comma(int64(len(files))) + " files"))
	return b.String()
}

// FileContent renders a file body. Markdown is rendered with glamour and
// falls back to plain text if rendering fails.
func FileContent(name string, fc api.FileContent, width int) string {
	if fc.Type == api.ContentError {
		return errorStyle.Render(fc.Content)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if isMarkdown(name) {
		if out, err := Markdown(fc.Content, width); err == nil {
			return out
		}
	}
	return fc.Content
}

// Markdown renders md for the terminal at the given wrap width.
func Markdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
