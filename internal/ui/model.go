// ABOUTME: Bubbletea model for the voice client TUI
// ABOUTME: Defines display state, key handling and the frame tick
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/level"
	"github.com/Resonate-Protocol/livetalk-go/pkg/playback"
	"github.com/Resonate-Protocol/livetalk-go/pkg/transcript"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	boxWidth       = 54
	transcriptRows = 5
	volumeStep     = 5
)

// Status is a snapshot of session state for display
type Status struct {
	Connected  bool
	Endpoint   string
	SessionID  string
	Listening  bool
	Speaking   bool
	Volume     int
	Muted      bool
	Playback   playback.Stats
	Transcript []transcript.Entry
}

// Controller is the session the TUI drives
type Controller interface {
	Status() Status
	ToggleListening() error
	SetVolume(volume int)
	SetMuted(muted bool)
}

// frameMsg is the display-refresh tick
type frameMsg time.Time

// ErrorMsg shows an error line until the next one
type ErrorMsg struct {
	Err error
}

// Model represents the TUI state
type Model struct {
	ctrl    Controller
	sampler *level.Sampler
	frame   time.Duration

	status Status
	levels []float64
	mode   level.Mode

	lastErr   string
	showDebug bool

	// Dimensions
	width  int
	height int
}

// Init starts the frame tick
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case frameMsg:
		m.refresh()
		return m, m.tick()
	case ErrorMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
	}

	return m, nil
}

// refresh samples levels and session state once per frame
func (m *Model) refresh() {
	if m.sampler != nil {
		m.levels = m.sampler.Tick()
		m.mode = m.sampler.Mode()
	}
	if m.ctrl != nil {
		m.status = m.ctrl.Status()
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderLevels()
	s += m.renderControls()
	s += m.renderTranscript()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

func line(content string) string {
	return fmt.Sprintf("│ %-*s │\n", boxWidth-4, truncate(content, boxWidth-4))
}

// renderHeader renders connection and turn state
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.status.Connected {
		connStatus = "Connected to " + m.status.Endpoint
	}

	mic := "off"
	if m.status.Listening {
		mic = "listening"
	}
	agent := "idle"
	if m.status.Speaking {
		agent = "speaking"
	}

	s := "┌─ LiveTalk " + strings.Repeat("─", boxWidth-13) + "┐\n"
	s += line("Status: " + connStatus)
	s += line(fmt.Sprintf("Mic: %-10s Agent: %s", mic, agent))
	if m.lastErr != "" {
		s += line("Error: " + m.lastErr)
	}
	s += "├" + strings.Repeat("─", boxWidth-2) + "┤\n"
	return s
}

// renderLevels renders one column per band
func (m Model) renderLevels() string {
	return line(fmt.Sprintf("%-10s %s", m.mode.String(), renderBands(m.levels)))
}

// renderControls renders volume and buffer status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.status.Muted {
		muteIcon = " (muted)"
	}

	volumeBar := renderBar(m.status.Volume, 100, 10)
	ahead := m.status.Playback.Ahead.Round(time.Millisecond)

	return line(fmt.Sprintf("Volume: [%s] %d%%%s", volumeBar, m.status.Volume, muteIcon)) +
		line(fmt.Sprintf("Buffer: %v ahead (%d queued)", ahead, m.status.Playback.Queued))
}

// renderTranscript renders the last few utterances
func (m Model) renderTranscript() string {
	s := "├" + strings.Repeat("─", boxWidth-2) + "┤\n"

	entries := m.status.Transcript
	if len(entries) > transcriptRows {
		entries = entries[len(entries)-transcriptRows:]
	}
	if len(entries) == 0 {
		return s + line("(say something)")
	}

	for _, e := range entries {
		who := "you"
		if e.Role == transcript.RoleAgent {
			who = "agent"
		}
		text := e.Text
		if !e.Final {
			text += "…"
		}
		s += line(fmt.Sprintf("%-6s %s", who+":", text))
	}
	return s
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	st := m.status.Playback
	return "├" + strings.Repeat("─", boxWidth-2) + "┤\n" +
		line(fmt.Sprintf("RX: %d  Played: %d  Bad: %d  Underruns: %d",
			st.Received, st.Scheduled, st.Malformed, st.Underruns))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return line("space:Talk  +/-:Volume  m:Mute  d:Debug  q:Quit") +
		"└" + strings.Repeat("─", boxWidth-2) + "┘\n"
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return line("DEBUG:") +
		line("  Session: "+m.status.SessionID) +
		line(fmt.Sprintf("  Cursor: %v  Turns: %d", m.status.Playback.Cursor, m.status.Playback.Turns))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.ctrl != nil {
			if err := m.ctrl.ToggleListening(); err != nil {
				m.lastErr = err.Error()
			} else {
				m.lastErr = ""
			}
		}
	case "up", "+", "=":
		m.setVolume(m.status.Volume + volumeStep)
	case "down", "-":
		m.setVolume(m.status.Volume - volumeStep)
	case "m":
		m.status.Muted = !m.status.Muted
		if m.ctrl != nil {
			m.ctrl.SetMuted(m.status.Muted)
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m *Model) setVolume(volume int) {
	m.status.Volume = max(0, min(100, volume))
	if m.ctrl != nil {
		m.ctrl.SetVolume(m.status.Volume)
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

var bandGlyphs = []rune(" ▁▂▃▄▅▆▇█")

func renderBands(levels []float64) string {
	var b strings.Builder
	for _, v := range levels {
		idx := int(v * float64(len(bandGlyphs)-1))
		idx = max(0, min(len(bandGlyphs)-1, idx))
		b.WriteRune(bandGlyphs[idx])
		b.WriteRune(bandGlyphs[idx])
	}
	return b.String()
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
