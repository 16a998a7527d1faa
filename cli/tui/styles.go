// Package tui provides the Bubble Tea live view for osm replication stream --tui.
//
// The view is read-only: it shows the entries the stream emits and the
// session counters, and never changes what the stream does.
package tui

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Palette entries adapt to light and dark terminals.
var (
	accent  = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"}
	info    = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	good    = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	caution = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	bad     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	dim     = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	plain   = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
)

// Lag above these thresholds is drawn as caution and bad.
const (
	lagCaution = 10 * time.Minute
	lagBad     = time.Hour
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	textStyle   = lipgloss.NewStyle().Foreground(plain)
	footerStyle = lipgloss.NewStyle().Foreground(dim).MarginTop(1)

	// Entry list columns.
	seqnoColumn = lipgloss.NewStyle().Foreground(info).Width(12)
	timeColumn  = lipgloss.NewStyle().Foreground(dim).Width(22)

	tileStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(16).
			Align(lipgloss.Center)
	tileValue = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	tileLabel = lipgloss.NewStyle().Foreground(dim).Align(lipgloss.Center)
)

func statusColor(s Status) lipgloss.TerminalColor {
	switch s {
	case StatusStreaming:
		return caution
	case StatusFinished:
		return good
	case StatusFailed:
		return bad
	}
	return plain
}

// lagColor grades how far the newest entry trails the wall clock.
func lagColor(lag time.Duration) lipgloss.TerminalColor {
	switch {
	case lag >= lagBad:
		return bad
	case lag >= lagCaution:
		return caution
	}
	return good
}

// tile renders a bordered counter with its label underneath.
func tile(label, value string, color lipgloss.TerminalColor) string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		tileValue.Foreground(color).Render(value),
		tileLabel.Render(label),
	)
	return tileStyle.BorderForeground(color).Render(body)
}
