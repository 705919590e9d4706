package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	failedStyle = cellStyle.Foreground(lipgloss.Color("196"))

	hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderTable draws rows under headers. highlight, when set, picks rows
// drawn in the failure color.
func renderTable(headers []string, rows [][]string, highlight func(row []string) bool) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case highlight != nil && row >= 0 && row < len(rows) && highlight(rows[row]):
				return failedStyle
			default:
				return cellStyle
			}
		}).
		String()
}
