package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/talkmatch/internal/session"
)

type boardStyles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	persona  lipgloss.Style
	status   lipgloss.Style
	match    lipgloss.Style
	official lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
}

func newBoardStyles() boardStyles {
	if noColor {
		plain := lipgloss.NewStyle()
		return boardStyles{
			title: plain, header: plain, persona: plain, status: plain,
			match: plain, official: plain, section: plain, empty: plain,
		}
	}
	return boardStyles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		persona:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		status:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		match:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		official: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
	}
}

// renderBoard lays out one block per persona: name and ambassador status,
// then its top matches.
func renderBoard(board session.Board, s boardStyles) string {
	lines := []string{
		s.title.Render("Match Board"),
		s.header.Render(fmt.Sprintf("personas: %d", len(board))),
	}

	if len(board) == 0 {
		lines = append(lines, s.empty.Render("No personas configured."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, row := range board {
		lines = append(lines, s.section.Render(renderRow(row, s)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(row session.BoardRow, s boardStyles) string {
	parts := []string{
		s.persona.Render(row.Name) + " " + s.status.Render("["+row.Status+"]"),
	}
	if len(row.Matches) == 0 {
		parts = append(parts, s.empty.Render("  no matches yet"))
	}
	for _, m := range row.Matches {
		line := "  " + m.String()
		if m.Official {
			parts = append(parts, s.official.Render(line+" ♥"))
			continue
		}
		parts = append(parts, s.match.Render(line))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
