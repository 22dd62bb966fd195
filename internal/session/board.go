package session

import (
	"fmt"
	"strings"
)

// BoardMatch is one candidate on a persona's row of the board.
type BoardMatch struct {
	User     string  `json:"user"`
	Score    float64 `json:"score"`
	Messages int     `json:"messages"`
	Official bool    `json:"official,omitempty"`
}

// BoardRow summarizes one persona.
type BoardRow struct {
	Name    string       `json:"name"`
	State   string       `json:"state"`
	Status  string       `json:"status"`
	Matches []BoardMatch `json:"matches"`
}

// Board is the match overview shown to operators, one row per persona.
type Board []BoardRow

// Board returns the current overview in persona order.
func (m *Manager) Board() Board {
	board := make(Board, 0, len(m.names))
	for _, name := range m.names {
		snap := m.sessions[name].Ambassador().Snapshot()
		row := BoardRow{
			Name:    name,
			State:   snap.StateName,
			Status:  snap.Status,
			Matches: []BoardMatch{},
		}
		for _, c := range m.matcher.TopMatches(name, m.topN) {
			row.Matches = append(row.Matches, BoardMatch{
				User:     c.User,
				Score:    c.Score,
				Messages: m.counts.Count(name, c.User),
				Official: m.matcher.IsOfficial(name, c.User),
			})
		}
		board = append(board, row)
	}
	return board
}

// String renders a match line such as "Bob: 0.90 (3 msgs)".
func (b BoardMatch) String() string {
	s := fmt.Sprintf("%s: %.2f", b.User, b.Score)
	if b.Messages > 0 {
		s += fmt.Sprintf(" (%d msgs)", b.Messages)
	}
	return s
}

// String renders the board as plain text.
func (b Board) String() string {
	var sb strings.Builder
	for _, row := range b {
		fmt.Fprintf(&sb, "%s [%s]\n", row.Name, row.Status)
		for _, match := range row.Matches {
			fmt.Fprintf(&sb, "  %s\n", match)
		}
	}
	return sb.String()
}
