package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
	"github.com/randomizedcoder/go-whisper-runner/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// EventMsg carries one job event into the program.
type EventMsg struct {
	Event events.Event
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	audioPath    string
	model        string
	optimization string
	metricsAddr  string

	// Current state
	snap         stats.JobStats
	status       JobStatus
	lastError    string
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Stats source (for fetching updates)
	statsSource StatsSource

	// onCancel is called once when the user asks to stop a running job.
	onCancel func()

	// Quit flag
	quitting bool
}

// StatsSource provides job statistics. *stats.Tracker implements it.
type StatsSource interface {
	Snapshot() stats.JobStats
}

// Config holds TUI configuration.
type Config struct {
	AudioPath    string
	Model        string
	Optimization string
	MetricsAddr  string
	StatsSource  StatsSource
	OnCancel     func()
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		audioPath:    cfg.AudioPath,
		model:        cfg.Model,
		optimization: cfg.Optimization,
		metricsAddr:  cfg.MetricsAddr,
		statsSource:  cfg.StatsSource,
		onCancel:     cfg.OnCancel,
		snap:         stats.JobStats{ETA: stats.UnknownETA},
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.status == JobStatusRunning || m.status == JobStatusWaiting {
				m.status = JobStatusCancelling
				if m.onCancel != nil {
					go m.onCancel()
				}
				return m, nil
			}
			if m.status == JobStatusCancelling {
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case EventMsg:
		m.applyEvent(msg.Event)
		m.refresh()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyEvent(e events.Event) {
	switch {
	case e.Type.Terminal():
		m.status = StatusFromOutcome(e.Type)
		if e.Reason != "" {
			m.lastError = e.Reason
		}
	case e.Type == events.TypeErrorLine:
		m.lastError = e.Text
		if m.status == JobStatusWaiting {
			m.status = JobStatusRunning
		}
	default:
		if m.status == JobStatusWaiting {
			m.status = JobStatusRunning
		}
	}
}

func (m *Model) refresh() {
	if m.statsSource != nil {
		m.snap = m.statsSource.Snapshot()
		if m.snap.Done() {
			m.status = StatusFromOutcome(m.snap.Outcome)
		}
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the job's elapsed time, or the time since the dashboard
// started when no job has reported yet.
func (m Model) Elapsed() time.Duration {
	if !m.snap.Started.IsZero() {
		return m.snap.Elapsed
	}
	return time.Since(m.startTime)
}

// Status returns the current job status.
func (m Model) Status() JobStatus {
	return m.status
}

// Progress returns completion as 0.0 to 1.0, or -1 when unknown.
func (m Model) Progress() float64 {
	if m.snap.Percentage == nil {
		return -1
	}
	return *m.snap.Percentage / 100
}

// =============================================================================
// Helper for external use
// =============================================================================

// Sink forwards events to a running program. It implements events.Sink.
type Sink struct {
	program *tea.Program
}

// NewSink creates a sink for p.
func NewSink(p *tea.Program) *Sink {
	return &Sink{program: p}
}

// Emit implements events.Sink. It blocks until the program takes the message
// or has exited.
func (s *Sink) Emit(e events.Event) {
	if s == nil || s.program == nil {
		return
	}
	s.program.Send(EventMsg{Event: e})
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
