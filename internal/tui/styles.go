// Package tui provides a live terminal dashboard for a transcription job.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Job status and elapsed time
// - Progress bar, audio position and ETA
// - Realtime factor
// - The most recent transcript lines
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	transcriptStyle = lipgloss.NewStyle().
			Foreground(colorText)

	errorLineStyle = lipgloss.NewStyle().
			Foreground(colorError)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	// Header style
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	// Section header style
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	// Footer style
	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Job Status Indicator
// =============================================================================

// JobStatus is the dashboard's view of the job lifecycle.
type JobStatus int

const (
	JobStatusWaiting JobStatus = iota
	JobStatusRunning
	JobStatusCancelling
	JobStatusCompleted
	JobStatusFailed
	JobStatusCancelled
)

// StatusFromOutcome maps a terminal event type to a JobStatus.
func StatusFromOutcome(t events.Type) JobStatus {
	switch t {
	case events.TypeCompleted:
		return JobStatusCompleted
	case events.TypeFailed:
		return JobStatusFailed
	case events.TypeCancelled:
		return JobStatusCancelled
	default:
		return JobStatusRunning
	}
}

// GetStatusLabel returns a styled label for the job status.
func GetStatusLabel(status JobStatus) string {
	switch status {
	case JobStatusRunning:
		return statusInfo.Render("● Running")
	case JobStatusCancelling:
		return statusWarning.Render("● Cancelling")
	case JobStatusCompleted:
		return statusOK.Render("● Completed")
	case JobStatusFailed:
		return statusError.Render("● Failed")
	case JobStatusCancelled:
		return statusWarning.Render("● Cancelled")
	default:
		return mutedStyle.Render("● Waiting")
	}
}

// =============================================================================
// Speed Status Indicator
// =============================================================================

// GetSpeedStyle returns a style based on the realtime factor.
func GetSpeedStyle(speed float64) lipgloss.Style {
	switch {
	case speed >= 1.0:
		return valueGoodStyle
	case speed >= 0.5:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetSpeedLabel returns a styled realtime factor.
func GetSpeedLabel(speed float64) string {
	style := GetSpeedStyle(speed)
	return style.Render(formatSpeedValue(speed))
}

func formatSpeedValue(speed float64) string {
	if speed == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2fx", speed)
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar. progress is 0.0 to 1.0.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(strings.Repeat("█", filled)) +
		progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %5.1f%%", progress*100))

	return bar + percent
}
