// Package watch implements the live run view: a Bubble Tea TUI that renders
// streamed events, stage progress, and connection state for a single run or
// operation, driven by a runview.Controller.
package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bastionhq/bastionctl/internal/hub"
	"github.com/bastionhq/bastionctl/internal/progress"
	"github.com/bastionhq/bastionctl/internal/runview"
	"github.com/bastionhq/bastionctl/internal/stream"
)

// Model represents the watch TUI state
type Model struct {
	// Core state
	view   *runview.Controller
	target hub.Target

	// Snapshot of the controller, refreshed on each update batch
	status      *hub.StatusSnapshot
	report      progress.Report
	hasReport   bool
	streamStat  stream.Status
	retryAt     time.Time
	degraded    error
	pollErr     error
	pollStopped bool
	finished    bool

	// UI components
	spinner  spinner.Model
	overall  progressbar.Model
	viewport viewport.Model
	keymap   KeyMap
	help     help.Model
	styles   Styles

	// UI state
	ready   bool
	loading bool
	ticking bool
	width   int
	height  int
	openErr error
}

// NewModel creates a new watch TUI model bound to a view controller. The
// controller is opened from Init; the caller owns its lifecycle and closes
// it after the program exits.
func NewModel(view *runview.Controller, target hub.Target) Model {
	styles := DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return Model{
		view:    view,
		target:  target,
		spinner: s,
		overall: progressbar.New(progressbar.WithDefaultGradient()),
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		styles:  styles,
		loading: true,
	}
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.openView, waitForBatch(m.view.Updates()))
}

// OpenErr returns the error that aborted the session, if any. The command
// inspects it on the final model once the program has exited.
func (m Model) OpenErr() error {
	return m.openErr
}

// eventViewHeight returns the viewport height for the current terminal
// size, reserving rows for the header, progress block, status bar and help.
func (m Model) eventViewHeight() int {
	reserved := 12
	if m.help.ShowAll {
		reserved += 2
	}
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	return h
}

// rowsFromBottom reports how far the viewport is scrolled away from the
// newest line, in rows.
func (m Model) rowsFromBottom() float64 {
	d := m.viewport.TotalLineCount() - (m.viewport.YOffset + m.viewport.Height)
	if d < 0 {
		d = 0
	}
	return float64(d)
}

func barWidth(total int) int {
	w := total - 12
	if w > 60 {
		w = 60
	}
	if w < 10 {
		w = 10
	}
	return w
}
