package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-whisper-runner/internal/stats"
)

const (
	summaryTranscriptLines  = 5
	detailedTranscriptLines = 20
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())
	sections = append(sections, m.renderJobStats())
	sections = append(sections, m.renderTranscript())
	if m.lastError != "" {
		sections = append(sections, m.renderLastError())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-whisper-runner │ %s │ Elapsed: %s ",
		GetStatusLabel(m.status),
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("Progress"))

	barWidth := m.width - 12
	if barWidth > 60 {
		barWidth = 60
	}
	if p := m.Progress(); p >= 0 {
		lines = append(lines, RenderProgressBar(p, barWidth))
	} else {
		lines = append(lines, dimStyle.Render("waiting for first progress report..."))
	}

	if m.snap.CurrentSeconds != nil || m.snap.TotalSeconds != nil {
		lines = append(lines, RenderKeyValue("Audio position",
			stats.FormatSeconds(m.snap.CurrentSeconds)+" / "+stats.FormatSeconds(m.snap.TotalSeconds)))
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Realtime factor:"),
		GetSpeedLabel(m.snap.RealtimeFactor),
	))
	lines = append(lines, RenderKeyValue("ETA", stats.FormatETA(m.snap.ETA)))

	return strings.Join(lines, "\n")
}

// =============================================================================
// Job Stats Section
// =============================================================================

func (m Model) renderJobStats() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("Job"))

	if m.audioPath != "" {
		lines = append(lines, RenderKeyValue("Audio", m.audioPath))
	}
	if m.model != "" {
		lines = append(lines, RenderKeyValue("Model", m.model))
	}
	if m.optimization != "" {
		lines = append(lines, RenderKeyValue("Optimization", m.optimization))
	}
	lines = append(lines, RenderKeyValue("Transcript lines", stats.FormatNumber(m.snap.OutputLines)))

	errStyle := valueGoodStyle
	if m.snap.ErrorLines > 0 {
		errStyle = valueWarnStyle
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Error lines:"),
		errStyle.Render(stats.FormatNumber(m.snap.ErrorLines)),
	))

	if m.snap.RecentFactor > 0 {
		lines = append(lines, RenderKeyValue("Speed (last 30s)", stats.FormatFactor(m.snap.RecentFactor)))
	}
	if m.snap.RateP50 > 0 {
		lines = append(lines, RenderKeyValue("Speed p50 / p95",
			fmt.Sprintf("%s / %s", stats.FormatFactor(m.snap.RateP50), stats.FormatFactor(m.snap.RateP95))))
	}

	return strings.Join(lines, "\n")
}

// =============================================================================
// Transcript Section
// =============================================================================

func (m Model) renderTranscript() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("Transcript"))

	n := summaryTranscriptLines
	if m.detailedView {
		n = detailedTranscriptLines
	}
	recent := m.snap.LastLines
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	if len(recent) == 0 {
		lines = append(lines, dimStyle.Render("(no output yet)"))
	}
	for _, l := range recent {
		lines = append(lines, transcriptStyle.Render(truncate(l, m.width)))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderLastError() string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Last error:"),
		errorLineStyle.Render(truncate(m.lastError, m.width-20)),
	)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	var parts []string
	switch m.status {
	case JobStatusRunning, JobStatusWaiting:
		parts = append(parts, "q: cancel job")
	case JobStatusCancelling:
		parts = append(parts, "cancelling...")
	default:
		parts = append(parts, "q: quit")
	}
	parts = append(parts, "d: toggle transcript size", "r: refresh")
	if m.metricsAddr != "" {
		parts = append(parts, "metrics: http://"+m.metricsAddr+"/metrics")
	}
	return footerStyle.Render(strings.Join(parts, " │ "))
}

// truncate shortens s to width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 1 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
