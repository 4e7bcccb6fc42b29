package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TableTerminal renders t for a terminal.
func TableTerminal(t *Table) string {
	if t.Empty() {
		return mutedStyle.Render(t.PlaceholderText())
	}
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(t.Columns...).
		Rows(t.Rows...)

	out := tbl.String()
	if n := t.Notice(); n != "" {
		out += "\n" + mutedStyle.Render(n)
	}
	return out
}

// MessageTerminal renders a message with a severity prefix.
func MessageTerminal(m Message) string {
	switch m.Severity {
	case SeveritySuccess:
		return successStyle.Render("✔ " + m.Text)
	case SeverityError:
		return errorStyle.Render("✖ " + m.Text)
	default:
		return infoStyle.Render("• " + m.Text)
	}
}

// BadgeTerminal renders a badge in green or red.
func BadgeTerminal(b Badge) string {
	if b.OK {
		return successStyle.Render(b.Text)
	}
	return errorStyle.Render(b.Text)
}

// TextTerminal indents a text block under a heading.
func TextTerminal(heading, body string) string {
	var b strings.Builder
	if heading != "" {
		b.WriteString(mutedStyle.Render(heading))
		b.WriteString("\n")
	}
	b.WriteString(body)
	return b.String()
}
