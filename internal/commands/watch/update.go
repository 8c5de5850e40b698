package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bastionhq/bastionctl/internal/runview"
	"github.com/bastionhq/bastionctl/internal/stream"
)

// Update handles messages and updates the model accordingly
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.overall.Width = barWidth(msg.Width)

		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.eventViewHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.eventViewHeight()
		}
		m.viewport.SetContent(m.renderEvents())
		if m.view.FollowState().Enabled {
			m.viewport.GotoBottom()
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
			if m.ready {
				m.viewport.Height = m.eventViewHeight()
			}

		case key.Matches(msg, m.keymap.Follow):
			if m.view.ToggleFollow() && m.ready {
				m.viewport.GotoBottom()
			}

		case key.Matches(msg, m.keymap.Latest):
			if m.view.JumpToLatest() && m.ready {
				m.viewport.GotoBottom()
			}

		case key.Matches(msg, m.keymap.Reconnect):
			m.view.ReconnectNow()

		case key.Matches(msg, m.keymap.Up),
			key.Matches(msg, m.keymap.Down),
			key.Matches(msg, m.keymap.PageUp),
			key.Matches(msg, m.keymap.PageDown):
			if m.ready {
				var cmd tea.Cmd
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
				// Scrolling back to the bottom re-engages follow; the
				// controller decides, the view just snaps when it does.
				if m.view.ReportScroll(m.rowsFromBottom()) && m.view.FollowState().Enabled {
					m.viewport.GotoBottom()
				}
			}
		}

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case progressbar.FrameMsg:
		pm, cmd := m.overall.Update(msg)
		m.overall = pm.(progressbar.Model)
		cmds = append(cmds, cmd)

	case OpenFailedMsg:
		m.loading = false
		m.openErr = msg.Err
		return m, tea.Quit

	case CountdownTickMsg:
		m.ticking = false
		if m.streamStat.State == stream.StateReconnecting && time.Until(m.retryAt) > 0 {
			m.ticking = true
			cmds = append(cmds, tickCountdown())
		}

	case BatchMsg:
		var rebuild, scroll, rederive bool

		for _, u := range msg.Updates {
			switch u.Kind {
			case runview.UpdateBackfill:
				m.loading = false
				if u.Err != nil {
					m.degraded = u.Err
				} else {
					m.degraded = nil
					rebuild = true
					rederive = true
					scroll = scroll || u.Scroll
				}

			case runview.UpdateEvent:
				rebuild = true
				rederive = true
				scroll = scroll || u.Scroll

			case runview.UpdateStatus:
				m.loading = false
				m.status = u.Status
				rederive = true
				if u.Status != nil && u.Status.Status.Terminal() {
					m.finished = true
				}

			case runview.UpdateStream:
				m.streamStat = u.Stream
				if u.Stream.State == stream.StateReconnecting && u.Stream.RetryIn > 0 {
					m.retryAt = time.Now().Add(u.Stream.RetryIn)
					if !m.ticking {
						m.ticking = true
						cmds = append(cmds, tickCountdown())
					}
				}

			case runview.UpdatePollStopped:
				m.pollStopped = true
				m.pollErr = u.Err
			}
		}

		if rebuild && m.ready {
			m.viewport.SetContent(m.renderEvents())
		}
		if scroll && m.ready {
			m.viewport.GotoBottom()
		}
		if rederive {
			m.report = m.view.Derive()
			m.hasReport = true
			cmds = append(cmds, m.overall.SetPercent(float64(m.report.OverallPercent)/100))
		}

		if !msg.Closed {
			cmds = append(cmds, waitForBatch(m.view.Updates()))
		}
	}

	return m, tea.Batch(cmds...)
}
