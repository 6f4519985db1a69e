// ABOUTME: TUI initialization
// ABOUTME: Wraps the bubbletea program around a session controller
package ui

import (
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/level"
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a TUI model refreshed fps times per second
func NewModel(ctrl Controller, sampler *level.Sampler, fps int) Model {
	if fps <= 0 {
		fps = level.DefaultFPS
	}

	m := Model{
		ctrl:    ctrl,
		sampler: sampler,
		frame:   time.Second / time.Duration(fps),
		status:  Status{Volume: 100},
	}
	if ctrl != nil {
		m.status = ctrl.Status()
	}
	return m
}

// NewProgram creates the full-screen TUI program
func NewProgram(ctrl Controller, sampler *level.Sampler, fps int) *tea.Program {
	return tea.NewProgram(NewModel(ctrl, sampler, fps), tea.WithAltScreen())
}
