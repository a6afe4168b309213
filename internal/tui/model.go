// Package tui provides the Bubble Tea live training view.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/pitchcoach/internal/model"
	"github.com/verte-zerg/pitchcoach/internal/stats"
)

const (
	historyLen    = 64
	gaugeMinHz    = 80.0
	gaugeMaxHz    = 350.0
	warningLinger = 8 * time.Second
)

// Controls is the part of the session controller the view drives.
type Controls interface {
	Pause() error
	Resume() error
}

// EventMsg carries one status event into the program.
type EventMsg struct {
	Event model.StatusEvent
}

type streamClosedMsg struct{}

// Listen returns a command that delivers the next event from ch. The model
// re-arms it after every event.
func Listen(ch <-chan model.StatusEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Model implements the Bubble Tea training UI.
type Model struct {
	controls Controls
	events   <-chan model.StatusEvent
	now      func() time.Time

	width  int
	height int

	goalHz        float64
	pitchHz       float64
	hasPitch      bool
	dip           model.DipInfo
	activeSeconds float64
	history       []float64

	state    model.SessionState
	reason   string
	noiseMsg string
	warning  *model.SafetyWarning
	warnedAt time.Time
	complete bool
	errMsg   string
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	goalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	nearStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14")).Bold(true)
	dipStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs a training view reading events from ch.
func NewModel(controls Controls, ch <-chan model.StatusEvent, goalHz float64) *Model {
	return &Model{
		controls: controls,
		events:   ch,
		now:      time.Now,
		goalHz:   goalHz,
		state:    model.SessionStateActive,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return Listen(m.events)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "p", " ":
			m.togglePause()
			return m, nil
		}
		return m, nil
	case EventMsg:
		m.apply(msg.Event)
		if m.state == model.SessionStateStopped {
			return m, tea.Quit
		}
		return m, Listen(m.events)
	case streamClosedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) togglePause() {
	var err error
	switch m.state {
	case model.SessionStatePaused:
		err = m.controls.Resume()
	case model.SessionStateActive:
		err = m.controls.Pause()
	default:
		return
	}
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
}

func (m *Model) apply(ev model.StatusEvent) {
	switch ev.Kind {
	case model.EventTrainingStatus:
		if ev.Training == nil {
			return
		}
		t := ev.Training
		m.pitchHz = t.PitchHz
		m.hasPitch = true
		if t.GoalHz > 0 {
			m.goalHz = t.GoalHz
		}
		m.dip = t.Dip
		m.activeSeconds = t.ActiveSeconds
		m.noiseMsg = ""
		m.history = append(m.history, t.PitchHz)
		if len(m.history) > historyLen {
			m.history = m.history[len(m.history)-historyLen:]
		}
	case model.EventNoiseFeedback:
		if ev.Noise != nil {
			m.noiseMsg = ev.Noise.Message
		}
	case model.EventSafetyWarning:
		if ev.Safety != nil {
			w := *ev.Safety
			m.warning = &w
			m.warnedAt = ev.At
		}
	case model.EventExerciseComplete:
		m.complete = true
		if ev.Complete != nil {
			m.activeSeconds = ev.Complete.ActiveSeconds
		}
	case model.EventSessionState:
		if ev.State != nil {
			m.state = ev.State.State
			m.reason = ev.State.Reason
		}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = 60
	}
	contentWidth := min(width, max(20, int(float64(width)*0.70)))

	lines := []string{
		titleStyle.Render(fmt.Sprintf("Goal %.0f Hz", m.goalHz)),
		"",
		m.renderPitch(),
		m.renderGauge(contentWidth),
		mutedStyle.Render(stats.Sparkline(m.history)),
		"",
	}
	lines = append(lines, m.renderStatus(contentWidth)...)
	content := lipgloss.NewStyle().Width(contentWidth).Render(strings.Join(lines, "\n"))
	footer := m.renderFooter()
	if m.width == 0 || m.height == 0 {
		return content + "\n" + footer
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderPitch() string {
	if !m.hasPitch {
		return mutedStyle.Render("--- Hz")
	}
	text := fmt.Sprintf("%.1f Hz", m.pitchHz)
	switch {
	case m.dip.InDip:
		return dipStyle.Render(text)
	case m.pitchHz >= m.goalHz:
		return goalStyle.Render(text)
	default:
		return nearStyle.Render(text)
	}
}

// renderGauge draws a horizontal scale with the goal as '|' and the current
// pitch as '●'.
func (m *Model) renderGauge(width int) string {
	if width < 3 {
		return ""
	}
	cells := []rune(strings.Repeat("─", width))
	cells[gaugePos(m.goalHz, width)] = '|'
	if m.hasPitch {
		cells[gaugePos(m.pitchHz, width)] = '●'
	}
	return string(cells)
}

func gaugePos(hz float64, width int) int {
	pos := (hz - gaugeMinHz) / (gaugeMaxHz - gaugeMinHz)
	pos = math.Max(0, math.Min(1, pos))
	return int(math.Round(pos * float64(width-1)))
}

func (m *Model) renderStatus(width int) []string {
	var lines []string
	switch {
	case m.state == model.SessionStatePaused:
		lines = append(lines, warningStyle.Render("Paused. Press p to resume."))
	case m.state == model.SessionStateError:
		lines = append(lines, criticalStyle.Render(truncate("Error: "+m.reason, width)))
	case m.complete:
		lines = append(lines, goalStyle.Render("Target reached. Keep going or press q to finish."))
	}
	if m.dip.InDip {
		lines = append(lines, dipStyle.Render(fmt.Sprintf("Below range for %.1fs, %.1fs until alert", m.dip.DurationSeconds, m.dip.RemainingSeconds)))
		if m.dip.AlertTriggered {
			lines = append(lines, dipStyle.Render("Lift your pitch back toward the goal."))
		}
	} else if m.dip.Recovered {
		lines = append(lines, goalStyle.Render("Recovered."))
	}
	if m.noiseMsg != "" {
		for _, line := range wrapText(m.noiseMsg, width) {
			lines = append(lines, mutedStyle.Render(line))
		}
	}
	if m.warning != nil && m.now().Sub(m.warnedAt) < warningLinger {
		style := warningStyle
		if m.warning.Severity == model.SeverityCritical {
			style = criticalStyle
		}
		text := m.warning.Message
		if m.warning.Suggestion != "" {
			text += " " + m.warning.Suggestion
		}
		for _, line := range wrapText(text, width) {
			lines = append(lines, style.Render(line))
		}
	}
	if m.errMsg != "" {
		lines = append(lines, criticalStyle.Render(truncate(m.errMsg, width)))
	}
	return lines
}

func (m *Model) renderFooter() string {
	active := time.Duration(m.activeSeconds * float64(time.Second)).Round(time.Second)
	segments := []string{
		fmt.Sprintf("Active %02d:%02d", int(active.Minutes()), int(active.Seconds())%60),
		fmt.Sprintf("State %s", m.state),
		"p pause/resume",
		"q finish",
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
