package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used across commands.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Key     lipgloss.Style

	Folder  lipgloss.Style
	Table   lipgloss.Style
	Measure lipgloss.Style
	Column  lipgloss.Style
}

// NewStyles builds the style set. When enabled is false, or the
// terminal reports no color support, every style is a no-op so output
// stays free of escape codes.
func NewStyles(enabled bool) *Styles {
	if !enabled || termenv.ColorProfile() == termenv.Ascii {
		s := lipgloss.NewStyle()
		return &Styles{
			Title: s, Header: s, Success: s, Warning: s, Error: s,
			Muted: s, Key: s, Folder: s, Table: s, Measure: s, Column: s,
		}
	}

	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header:  lipgloss.NewStyle().Bold(true).Underline(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Key:     lipgloss.NewStyle().Bold(true),
		Folder:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		Table:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Measure: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		Column:  lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	}
}
